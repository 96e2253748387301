package mcp

import "github.com/mark3labs/mcp-go/mcp"

var extractToolDef = mcp.NewTool("lpk_extract",
	mcp.WithDescription("Decrypt and unpack a Live2D .lpk archive, or every .lpk under a directory. "+
		"Each archive is unpacked into <output_dir>/<archive name>; one failing archive does not stop the batch."),
	mcp.WithString("target", mcp.Required(), mcp.Description("A .lpk file or a directory searched recursively")),
	mcp.WithString("output_dir", mcp.Description("Output root directory (default: configured output_dir or the working directory)")),
	mcp.WithString("secrets_file", mcp.Description("Workshop config.json secret document (default: config.json next to each archive)")),
	mcp.WithNumber("jobs", mcp.Description("Archives extracted in parallel"), mcp.Min(1)),
	mcp.WithBoolean("strict_variants", mcp.Description("Reject unrecognized archive types instead of trying the legacy layout")),
	mcp.WithString("report", mcp.Description("Per-archive report format"), mcp.Enum("md", "html", "none")),
)

var inspectToolDef = mcp.NewTool("lpk_inspect",
	mcp.WithDescription("Read the manifest of a .lpk archive, or every .lpk under a directory, without decrypting anything."),
	mcp.WithString("target", mcp.Required(), mcp.Description("A .lpk file or a directory searched recursively")),
)

var historyToolDef = mcp.NewTool("lpk_history",
	mcp.WithDescription("List recorded extraction runs newest first, or show one run with its translation table."),
	mcp.WithString("run_id", mcp.Description("Show this run and its translations")),
	mcp.WithString("status", mcp.Description("Filter by run status"), mcp.Enum("ok", "partial", "failed")),
	mcp.WithString("archive", mcp.Description("Filter by archive path substring")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
)

var purgeToolDef = mcp.NewTool("lpk_purge",
	mcp.WithDescription("Permanently delete recorded runs from the ledger. Extracted files are not touched."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge runs finished more than N days ago")),
	mcp.WithString("status", mcp.Description("Only purge runs with this status"), mcp.Enum("ok", "partial", "failed")),
)
