package chemservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atomsense/domain/core"
	"atomsense/domain/molecule"
	apperrors "atomsense/internal/errors"
)

// Config holds the chemistry service connection settings
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks JSON over HTTP to a chemistry toolkit service. It implements
// the molecule codec, mutation generator and predictor ports.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates a client for the service at config.BaseURL
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing chemistry service URL")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type atomDTO struct {
	Index   int    `json:"index"`
	Element string `json:"element"`
}

type bondDTO struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Order int `json:"order"`
}

type moleculeDTO struct {
	Encoding string    `json:"encoding"`
	Atoms    []atomDTO `json:"atoms"`
	Bonds    []bondDTO `json:"bonds"`
}

func toDTO(mol *molecule.Molecule) moleculeDTO {
	dto := moleculeDTO{Encoding: mol.Encoding()}
	for _, a := range mol.Atoms() {
		dto.Atoms = append(dto.Atoms, atomDTO{Index: a.Index, Element: a.Element})
	}
	for _, b := range mol.Bonds() {
		dto.Bonds = append(dto.Bonds, bondDTO{From: b.From, To: b.To, Order: b.Order})
	}
	return dto
}

// statusError is a non-2xx answer from the service
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chemservice http %d: %s", e.status, e.body)
}

// Parse asks the service to parse an encoding into atoms and bonds. A 422
// answer means the encoding is not a valid molecule.
func (c *Client) Parse(ctx context.Context, encoding string) (*molecule.Molecule, error) {
	var out moleculeDTO
	err := c.post(ctx, "/parse", map[string]string{"encoding": encoding}, &out)
	if err != nil {
		if se, ok := err.(*statusError); ok && se.status == http.StatusUnprocessableEntity {
			return nil, core.NewInvalidMoleculeError(se.body)
		}
		return nil, apperrors.ExternalServiceError("chemservice", err)
	}

	atoms := make([]molecule.Atom, len(out.Atoms))
	for i, a := range out.Atoms {
		atoms[i] = molecule.Atom{Index: a.Index, Element: a.Element}
	}
	bonds := make([]molecule.Bond, len(out.Bonds))
	for i, b := range out.Bonds {
		bonds[i] = molecule.Bond{From: b.From, To: b.To, Order: b.Order}
	}
	if out.Encoding == "" {
		out.Encoding = encoding
	}
	return molecule.New(out.Encoding, atoms, bonds)
}

// Canonicalize returns the service's canonical encoding of mol. Atoms in
// atomMap are written with that map number, e.g. [CH3:2].
func (c *Client) Canonicalize(ctx context.Context, mol *molecule.Molecule, atomMap map[int]int) (string, error) {
	type reqBody struct {
		moleculeDTO
		AtomMap map[int]int `json:"atom_map,omitempty"`
	}
	var out struct {
		Canonical string `json:"canonical"`
	}
	if err := c.post(ctx, "/canonicalize", reqBody{moleculeDTO: toDTO(mol), AtomMap: atomMap}, &out); err != nil {
		return "", apperrors.ExternalServiceError("chemservice", err)
	}
	if out.Canonical == "" {
		return "", apperrors.ExternalServiceError("chemservice", fmt.Errorf("empty canonical encoding"))
	}
	return out.Canonical, nil
}

// Perturb requests one perturbation of mol centered on atomIndex. A null
// encoding in the answer means no variant was produced; a 422 answer means
// the variant failed sanitization.
func (c *Client) Perturb(ctx context.Context, mol *molecule.Molecule, atomIndex int, radius int) (string, bool, error) {
	type reqBody struct {
		moleculeDTO
		AtomIndex int `json:"atom_index"`
		Radius    int `json:"radius"`
	}
	var out struct {
		Encoding *string `json:"encoding"`
	}
	err := c.post(ctx, "/perturb", reqBody{moleculeDTO: toDTO(mol), AtomIndex: atomIndex, Radius: radius}, &out)
	if err != nil {
		if se, ok := err.(*statusError); ok && se.status == http.StatusUnprocessableEntity {
			return "", false, core.NewInvalidMoleculeError(se.body)
		}
		return "", false, apperrors.ExternalServiceError("chemservice", err)
	}
	if out.Encoding == nil || *out.Encoding == "" {
		return "", false, nil
	}
	return *out.Encoding, true, nil
}

// Predict scores a batch of encodings. The answer must hold one prediction
// per input, in input order.
func (c *Client) Predict(ctx context.Context, batch []string) ([]float64, error) {
	type reqBody struct {
		Model string   `json:"model,omitempty"`
		Batch []string `json:"batch"`
	}
	var out struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := c.post(ctx, "/predict", reqBody{Model: c.model, Batch: batch}, &out); err != nil {
		return nil, apperrors.ExternalServiceError("predictor", err)
	}
	if len(out.Predictions) != len(batch) {
		return nil, fmt.Errorf("predictor returned %d values for %d inputs", len(out.Predictions), len(batch))
	}
	return out.Predictions, nil
}

// Health checks that the service answers
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chemservice request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) post(ctx context.Context, path string, in interface{}, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chemservice request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respRaw))}
	}

	if err := json.Unmarshal(respRaw, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	return nil
}
