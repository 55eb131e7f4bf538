// Command ingest_cmorph_monthly appends monthly CMORPH precipitation to a NetCDF file.
package main

import (
	"os"

	"github.com/couchcryptid/cmorph-ingest/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewMonthlyCommand()))
}
