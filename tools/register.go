// Package tools registers the bundled okit tools. Importing it (blank, from
// the composition root) pulls in each tool package, whose init function
// registers a cheap descriptor; constructing the tool itself stays deferred
// until its command is dispatched.
package tools

import (
	_ "github.com/okit-dev/okit/tools/minimal"
	_ "github.com/okit-dev/okit/tools/mobaxtermcolors"
	_ "github.com/okit-dev/okit/tools/mobaxtermkeygen"
	_ "github.com/okit-dev/okit/tools/shellconfig"
)
