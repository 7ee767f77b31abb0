package xfile_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/omeyang/xtier/pkg/util/xfile"
)

func ExampleValidateName() {
	fmt.Println(xfile.ValidateName("session-1") == nil)
	fmt.Println(errors.Is(xfile.ValidateName("../etc"), xfile.ErrInvalidName))
	// Output:
	// true
	// true
}

func ExampleEnsureNamespaceDir() {
	root, err := os.MkdirTemp("", "xfile-example")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(root)

	dir, err := xfile.EnsureNamespaceDir(root, "users", xfile.DefaultDirPerm)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(filepath.Base(dir))
	// Output: users
}
