package testkit

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"atomsense/adapters/colorscale"
	"atomsense/adapters/memory"
	"atomsense/domain/core"
	"atomsense/domain/molecule"
	"atomsense/ports"
)

// TestKit bundles deterministic in-process fakes for every external port.
type TestKit struct {
	Codec     *FakeCodec
	Mutator   *FakeMutator
	Predictor *FakePredictor
	Colors    *colorscale.Registry
	Runs      *memory.RunRepository
}

// NewTestKit creates a kit seeded with seed
func NewTestKit(seed int64) *TestKit {
	return &TestKit{
		Codec:     NewFakeCodec(),
		Mutator:   NewFakeMutator(seed),
		Predictor: NewFakePredictor(),
		Colors:    colorscale.MustNewRegistry(),
		Runs:      memory.NewRunRepository(),
	}
}

// CodecAdapter returns the codec as a port
func (t *TestKit) CodecAdapter() ports.MoleculeCodecPort { return t.Codec }

// MutationAdapter returns the mutation generator as a port
func (t *TestKit) MutationAdapter() ports.MutationGeneratorPort { return t.Mutator }

// PredictorAdapter returns the predictor as a port
func (t *TestKit) PredictorAdapter() ports.PredictorPort { return t.Predictor }

// ColorAdapter returns the colour scales as a port
func (t *TestKit) ColorAdapter() ports.ColorScalePort { return t.Colors }

// RunRepository returns the run store as a port
func (t *TestKit) RunRepository() ports.RunRepository { return t.Runs }

// Chain builds a linear molecule with one atom per element, bonded in order.
func Chain(encoding string, elements ...string) *molecule.Molecule {
	atoms := make([]molecule.Atom, len(elements))
	var bonds []molecule.Bond
	for i, el := range elements {
		atoms[i] = molecule.Atom{Index: i, Element: el}
		if i > 0 {
			bonds = append(bonds, molecule.Bond{From: i - 1, To: i, Order: 1})
		}
	}
	m, err := molecule.New(encoding, atoms, bonds)
	if err != nil {
		panic(err)
	}
	return m
}

// FakeCodec knows a fixed set of molecules by encoding. Any other encoding
// is accepted as a single-carbon molecule unless it starts with "!".
type FakeCodec struct {
	mu    sync.Mutex
	known map[string]*molecule.Molecule

	// Err is returned by Parse once FailAfter calls have succeeded.
	Err       error
	FailAfter int

	parses int
}

// NewFakeCodec creates an empty codec
func NewFakeCodec() *FakeCodec {
	return &FakeCodec{known: make(map[string]*molecule.Molecule)}
}

// Register makes Parse return mol for its encoding
func (c *FakeCodec) Register(mol *molecule.Molecule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[mol.Encoding()] = mol
}

func (c *FakeCodec) Parse(ctx context.Context, encoding string) (*molecule.Molecule, error) {
	c.mu.Lock()
	m, ok := c.known[encoding]
	c.parses++
	failing := c.Err != nil && c.parses > c.FailAfter
	c.mu.Unlock()

	if failing {
		return nil, c.Err
	}
	if encoding == "" || strings.HasPrefix(encoding, "!") {
		return nil, core.NewInvalidMoleculeError(fmt.Sprintf("unparseable encoding %q", encoding))
	}
	if ok {
		return m.Clone(), nil
	}
	return molecule.New(encoding, []molecule.Atom{{Index: 0, Element: "C"}}, nil)
}

// Canonicalize prefixes the encoding with "canonical:". With a non-empty
// atomMap the atoms are spelled out in index order and mapped atoms are
// written as [El:n], e.g. "canonical:CC[C:2][C:3][O:3]".
func (c *FakeCodec) Canonicalize(ctx context.Context, mol *molecule.Molecule, atomMap map[int]int) (string, error) {
	if len(atomMap) == 0 {
		return "canonical:" + mol.Encoding(), nil
	}
	var b strings.Builder
	b.WriteString("canonical:")
	for _, a := range mol.Atoms() {
		if n, ok := atomMap[a.Index]; ok && n > 0 {
			fmt.Fprintf(&b, "[%s:%d]", a.Element, n)
			continue
		}
		b.WriteString(a.Element)
	}
	return b.String(), nil
}

// FakeMutator produces encodings of the form
// "<encoding>|a<atom>|n<neighbour>|s<seq>" where neighbour is drawn from the
// radius neighbourhood and seq counts valid results per atom from 0.
type FakeMutator struct {
	mu  sync.Mutex
	rng *rand.Rand

	// ValidLimit caps how many valid results an atom yields; further calls
	// return ok=false. Atoms not listed are unlimited.
	ValidLimit map[int]int
	// InvalidEvery makes every k-th call per atom return an unparseable encoding.
	InvalidEvery int
	// Err is returned on every call when set.
	Err error

	seq      map[int]int
	calls    map[int]int
	received []*molecule.Molecule
}

// NewFakeMutator creates a mutator with a seeded source
func NewFakeMutator(seed int64) *FakeMutator {
	return &FakeMutator{
		rng:        rand.New(rand.NewSource(seed)),
		ValidLimit: make(map[int]int),
		seq:        make(map[int]int),
		calls:      make(map[int]int),
	}
}

func (m *FakeMutator) Perturb(ctx context.Context, mol *molecule.Molecule, atomIndex int, radius int) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.received = append(m.received, mol)
	m.calls[atomIndex]++
	if m.Err != nil {
		return "", false, m.Err
	}
	if m.InvalidEvery > 0 && m.calls[atomIndex]%m.InvalidEvery == 0 {
		return "!invalid", true, nil
	}
	if limit, ok := m.ValidLimit[atomIndex]; ok && m.seq[atomIndex] >= limit {
		return "", false, nil
	}

	hood := mol.Neighborhood(atomIndex, radius)
	neighbour := hood[m.rng.Intn(len(hood))]
	s := m.seq[atomIndex]
	m.seq[atomIndex]++
	return fmt.Sprintf("%s|a%d|n%d|s%d", mol.Encoding(), atomIndex, neighbour, s), true, nil
}

// Calls returns how many times Perturb was called for an atom
func (m *FakeMutator) Calls(atomIndex int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[atomIndex]
}

// Received returns every molecule pointer handed to Perturb
func (m *FakeMutator) Received() []*molecule.Molecule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*molecule.Molecule, len(m.received))
	copy(out, m.received)
	return out
}

// FakePredictor returns Base ± Spread[atom] alternating on the perturbation
// sequence number, so a batch with an even number of entries has a
// population standard deviation of exactly Spread[atom].
type FakePredictor struct {
	mu sync.Mutex

	Base   float64
	Spread map[int]float64
	// FailOnAtom makes Predict fail for batches centered on these atoms.
	FailOnAtom map[int]bool
	// Truncate drops this many predictions from every response.
	Truncate int

	batches [][]string
}

// NewFakePredictor creates a predictor with zero spread everywhere
func NewFakePredictor() *FakePredictor {
	return &FakePredictor{
		Spread:     make(map[int]float64),
		FailOnAtom: make(map[int]bool),
	}
}

func (p *FakePredictor) Predict(ctx context.Context, batch []string) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]string, len(batch))
	copy(cp, batch)
	p.batches = append(p.batches, cp)

	out := make([]float64, 0, len(batch))
	for _, enc := range batch {
		atom, seq, err := ParsePerturbation(enc)
		if err != nil {
			return nil, err
		}
		if p.FailOnAtom[atom] {
			return nil, fmt.Errorf("model rejected batch for atom %d", atom)
		}
		sign := 1.0
		if seq%2 == 1 {
			sign = -1.0
		}
		out = append(out, p.Base+sign*p.Spread[atom])
	}
	if p.Truncate > 0 && p.Truncate <= len(out) {
		out = out[:len(out)-p.Truncate]
	}
	return out, nil
}

// Batches returns every batch received so far
func (p *FakePredictor) Batches() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, len(p.batches))
	copy(out, p.batches)
	return out
}

// ParsePerturbation extracts the atom and sequence number of a FakeMutator encoding.
func ParsePerturbation(enc string) (atom int, seq int, err error) {
	atom, seq = -1, -1
	for _, part := range strings.Split(enc, "|") {
		if len(part) < 2 {
			continue
		}
		switch part[0] {
		case 'a':
			if v, convErr := strconv.Atoi(part[1:]); convErr == nil {
				atom = v
			}
		case 's':
			if v, convErr := strconv.Atoi(part[1:]); convErr == nil {
				seq = v
			}
		}
	}
	if atom < 0 || seq < 0 {
		return 0, 0, fmt.Errorf("not a perturbation encoding: %q", enc)
	}
	return atom, seq, nil
}
