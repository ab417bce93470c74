// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/uran-qa/uran/cmd"

func main() {
	cmd.Execute()
}
