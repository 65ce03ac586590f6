// =============================================================================
// Payment Command Converter - Main Entry Point
// =============================================================================
//
// USAGE:
//   converter convert       - Convert spreadsheets into payment-command XML
//   converter preview       - Validate a spreadsheet and list rejected rows
//   converter responsible   - Manage the responsible-party registry
//   converter template      - Write a blank input spreadsheet
//   converter serve         - Run the HTTP front end
//   converter version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Validation, pipeline, XML, registry, readers, web
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/comandos-pagamento-xml/cmd"
)

func main() {
	cmd.Execute()
}
