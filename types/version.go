package types

// Version is the canonical growler version reported by the CLI.
const Version = "0.3.0"
