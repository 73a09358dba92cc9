package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/Atoilah/vcf-confreter/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/Atoilah/vcf-confreter/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/Atoilah/vcf-confreter/core/buildinfo.Date=2025-08-30T12:00:00Z'
//
// Default values are useful for local dev.
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders the build for humans, e.g. "v1.2.3 (abcdef0, 2025-08-30T12:00:00Z)".
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
