package domain

// Page bounds a list result.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Window returns the [start, end) slice bounds of the page over n items.
func (p Page) Window(n int) (int, int) {
	p = p.Normalize()
	if p.Offset >= n {
		return n, n
	}
	return p.Offset, min(p.Offset+p.Limit, n)
}
