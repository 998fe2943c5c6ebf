package domain

// Mode controls whether mutating actions are simulated or sent upstream.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeLive   Mode = "live"
)

// Live reports whether upstream mutations are allowed.
func (m Mode) Live() bool {
	return m == ModeLive
}

// ModeFor maps the process-wide live flag to a Mode.
func ModeFor(live bool) Mode {
	if live {
		return ModeLive
	}
	return ModeDryRun
}
