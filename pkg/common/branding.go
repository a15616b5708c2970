package common

import (
	"fmt"
	"io"
)

const Version = "v0.0.1"

func PrintBanner(w io.Writer) {
	banner := fmt.Sprintf(`
8888888b.  8888888b.   .d88888b.  888888b.   8888888888
888   Y88b 888   Y88b d88P" "Y88b 888  "88b  888
888    888 888    888 888     888 888  .88P  888
888   d88P 888   d88P 888     888 8888888K.  8888888
8888888P"  8888888P"  888     888 888  "Y88b 888
888        888 T88b   888     888 888    888 888
888        888  T88b  Y88b. .d88P 888   d88P 888
888        888   T88b  "Y88888P"  8888888P"  8888888888

PROBE %s
Tool discovery for stdio providers | (c) EdgeOps Labs
`, Version)

	fmt.Fprint(w, banner)
}
