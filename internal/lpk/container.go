package lpk

// Container is read access to a packed archive. Names passed to Read and
// ExtractVerbatim are physical entry names; Resolve maps a logical name
// to the physical one.
type Container interface {
	// Path is the archive's file system path.
	Path() string
	// List returns every physical entry name in archive order.
	List() []string
	// Resolve returns the physical name for a logical name: the md5-hex
	// hashed name when present, else the plain name.
	Resolve(logical string) (string, bool)
	// Read returns the raw bytes of a physical entry.
	Read(name string) ([]byte, error)
	// ExtractVerbatim copies a physical entry under destDir, keeping its
	// relative path, and returns the written path.
	ExtractVerbatim(name, destDir string) (string, error)
}

// readLogical resolves and reads a logical entry.
func readLogical(c Container, logical string) ([]byte, error) {
	name, ok := c.Resolve(logical)
	if !ok {
		return nil, errNotInContainer(logical)
	}
	return c.Read(name)
}
