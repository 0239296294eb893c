package syncore

// LegalNotice provides a license notice for syncore and its third-party
// dependencies.
const LegalNotice = `syncore

Licensed under the terms of the MIT License.

================================================================================
syncore depends on the following third-party software:
================================================================================

github.com/spf13/cobra and github.com/spf13/pflag, BSD-style license.
github.com/fatih/color, MIT License.
github.com/pkg/errors, BSD-style license.
github.com/google/uuid, BSD-style license.
github.com/dustin/go-humanize, MIT License.
github.com/fsnotify/fsnotify, BSD-style license.
github.com/mattn/go-sqlite3, MIT License.
github.com/mattn/go-isatty, MIT License.
golang.org/x/sync, BSD-style license.
`
