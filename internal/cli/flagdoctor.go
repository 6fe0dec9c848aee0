package cli

// validateFlags centralizes common flag combinations to keep behavior consistent.
func validateFlags(globals *Globals, placement string, page string) error {
	// quiet + text is confusing for agents; steer to ndjson
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}
	// an interactive page prompt cannot run with quiet enabled
	if globals != nil && globals.Quiet && page == "" && placement != "external" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet requires --page unless placement is external", "pass --page or --placement external")
	}
	return nil
}
