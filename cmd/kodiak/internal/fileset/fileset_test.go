// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fileset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_LaterSetsWin(t *testing.T) {
	code := FileSet{"app/auth.py": "source version", "app/util.py": "helpers"}
	tests := FileSet{"app/auth.py": "test fixture version", "test_auth.py": "tests"}

	merged := Merge(code, tests)
	assert.Len(t, merged, 3)
	assert.Equal(t, "test fixture version", merged["app/auth.py"])
	assert.Equal(t, "helpers", merged["app/util.py"])

	// Inputs are untouched.
	assert.Equal(t, "source version", code["app/auth.py"])
}

func TestMerge_NilAndEmpty(t *testing.T) {
	assert.Empty(t, Merge())
	assert.Empty(t, Merge(nil, FileSet{}))
	assert.Equal(t, FileSet{"a": "1"}, Merge(nil, FileSet{"a": "1"}))
}

func TestPaths_Sorted(t *testing.T) {
	fs := FileSet{"b.py": "", "a.py": "", "c/d.py": ""}
	assert.Equal(t, []string{"a.py", "b.py", "c/d.py"}, fs.Paths())
	assert.Empty(t, FileSet{}.Paths())
}
