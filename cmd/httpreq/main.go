// Command httpreq sends one HTTP request through the retrying transport.
//
//	httpreq -X POST -H "Accept: application/json" -d '{"summary":"1.1.1.1"}' \
//	    -q owner=Acme https://api.example.com/v2/indicators
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
