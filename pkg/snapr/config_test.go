package snapr

import (
	"testing"

	"github.com/function61/gokit/assert"
)

func TestConfigValidate(t *testing.T) {
	assert.Ok(t, Config{}.validate())
	assert.Ok(t, Config{
		Root:        "/home",
		Excludes:    []string{"/home/secret"},
		Tmpfs:       []string{"var/run"},
		Passthrough: []string{"/var/backups"},
	}.validate())

	assert.Assert(t, Config{Root: "relative"}.validate() != nil)
	assert.Assert(t, Config{Excludes: []string{"relative"}}.validate() != nil)
	assert.Assert(t, Config{Passthrough: []string{"relative"}}.validate() != nil)
	assert.Assert(t, Config{Tmpfs: []string{"/absolute"}}.validate() != nil)
	assert.Assert(t, Config{Tmpfs: []string{"../escape"}}.validate() != nil)
}

func TestRootScopeDefaultsToFilesystemRoot(t *testing.T) {
	root, err := Config{}.rootScope()
	assert.Ok(t, err)
	assert.EqualString(t, root.String(), "/")

	root, err = Config{Root: "/home"}.rootScope()
	assert.Ok(t, err)
	assert.EqualString(t, root.String(), "/home")
}
