package chemservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"atomsense/domain/core"
	"atomsense/domain/molecule"
	apperrors "atomsense/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", Model: "logp"})
	require.NoError(t, err)
	return c
}

func ethanol(t *testing.T) *molecule.Molecule {
	m, err := molecule.New("CCO",
		[]molecule.Atom{{Index: 0, Element: "C"}, {Index: 1, Element: "C"}, {Index: 2, Element: "O"}},
		[]molecule.Bond{{From: 0, To: 1, Order: 1}, {From: 1, To: 2, Order: 1}})
	require.NoError(t, err)
	return m
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "  "})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["encoding"] == "C1CC" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("unclosed ring"))
			return
		}
		_, _ = w.Write([]byte(`{"encoding":"OCC","atoms":[{"index":0,"element":"O"},{"index":1,"element":"C"},{"index":2,"element":"C"}],"bonds":[{"from":0,"to":1,"order":1},{"from":1,"to":2,"order":1}]}`))
	})

	mol, err := c.Parse(context.Background(), "OCC")
	require.NoError(t, err)
	assert.Equal(t, 3, mol.AtomCount())
	assert.Equal(t, []int{0, 2}, mol.Neighbors(1))

	_, err = c.Parse(context.Background(), "C1CC")
	assert.ErrorIs(t, err, core.ErrInvalidMolecule)
	assert.Contains(t, err.Error(), "unclosed ring")
}

func TestParseServerFailureIsUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "toolkit crashed", http.StatusInternalServerError)
	})

	_, err := c.Parse(context.Background(), "CCO")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeExternalService, apperrors.GetCode(err))
}

func TestCanonicalizeSendsStructure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/canonicalize", r.URL.Path)
		var body struct {
			moleculeDTO
			AtomMap map[int]int `json:"atom_map"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CCO", body.Encoding)
		assert.Len(t, body.Atoms, 3)
		assert.Len(t, body.Bonds, 2)
		if len(body.AtomMap) == 0 {
			_, _ = w.Write([]byte(`{"canonical":"OCC"}`))
			return
		}
		assert.Equal(t, map[int]int{0: 1, 2: 3}, body.AtomMap)
		_, _ = w.Write([]byte(`{"canonical":"[OH:3]C[CH3:1]"}`))
	})

	got, err := c.Canonicalize(context.Background(), ethanol(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "OCC", got)

	got, err = c.Canonicalize(context.Background(), ethanol(t), map[int]int{0: 1, 2: 3})
	require.NoError(t, err)
	assert.Equal(t, "[OH:3]C[CH3:1]", got)
}

func TestPerturb(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AtomIndex int `json:"atom_index"`
			Radius    int `json:"radius"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 2, body.Radius)
		if body.AtomIndex == 2 {
			_, _ = w.Write([]byte(`{"encoding":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"encoding":"CCN"}`))
	})

	enc, ok, err := c.Perturb(context.Background(), ethanol(t), 0, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CCN", enc)

	_, ok, err = c.Perturb(context.Background(), ethanol(t), 2, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPerturbErrorKinds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AtomIndex int `json:"atom_index"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.AtomIndex == 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("sanitization failed"))
			return
		}
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, ok, err := c.Perturb(context.Background(), ethanol(t), 0, 2)
	assert.False(t, ok)
	assert.ErrorIs(t, err, core.ErrInvalidMolecule)

	_, ok, err = c.Perturb(context.Background(), ethanol(t), 1, 2)
	assert.False(t, ok)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrInvalidMolecule)
	assert.Equal(t, apperrors.CodeExternalService, apperrors.GetCode(err))
}

func TestPredict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string   `json:"model"`
			Batch []string `json:"batch"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "logp", body.Model)

		preds := make([]float64, len(body.Batch))
		for i := range preds {
			preds[i] = float64(i) / 2
		}
		if len(body.Batch) == 3 {
			preds = preds[:2]
		}
		_ = json.NewEncoder(w).Encode(map[string][]float64{"predictions": preds})
	})

	got, err := c.Predict(context.Background(), []string{"CC", "CO"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, got)

	_, err = c.Predict(context.Background(), []string{"CC", "CO", "CN"})
	assert.ErrorContains(t, err, "2 values for 3 inputs")
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.ErrorContains(t, c.Health(context.Background()), "503")
}
