package eeprom

// Memory is a RAM-only Device. Writes are visible immediately; Commit only
// counts.
type Memory struct {
	data    []byte
	Commits int
}

// NewMemory returns an erased device of the given size.
func NewMemory(size int) *Memory {
	data := make([]byte, size)
	for i := range data {
		data[i] = Erased
	}
	return &Memory{data: data}
}

func (m *Memory) Size() int { return len(m.data) }

func (m *Memory) Read(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > len(m.data) {
		return ErrOutOfRange
	}
	copy(p, m.data[offset:])
	return nil
}

func (m *Memory) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > len(m.data) {
		return ErrOutOfRange
	}
	copy(m.data[offset:], p)
	return nil
}

func (m *Memory) Commit() error {
	m.Commits++
	return nil
}

// Fill sets every byte to v.
func (m *Memory) Fill(v byte) {
	for i := range m.data {
		m.data[i] = v
	}
}

// Raw exposes the backing slice for tests and tooling.
func (m *Memory) Raw() []byte { return m.data }
