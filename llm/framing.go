package llm

// Llama 3 chat template markers.
const (
	RoleHeader = "<|start_header_id|>"
	RoleEnd    = "<|end_header_id|>"
	EndOfTurn  = "<|eot_id|>"

	// LegacyUserHeader is the malformed user header older prompt files
	// were tuned against. Selected by LocalConfig.LegacyFraming.
	LegacyUserHeader = "<|start_header><header_id|>"
)

// Framing wraps a system/user pair in chat template markers for a model
// that reads raw text on stdin.
type Framing struct {
	RoleHeader string
	RoleEnd    string
	EndOfTurn  string
	// UserHeader replaces RoleHeader in front of the user role when set.
	UserHeader string
}

// DefaultFraming is the well-formed Llama 3 framing.
var DefaultFraming = Framing{
	RoleHeader: RoleHeader,
	RoleEnd:    RoleEnd,
	EndOfTurn:  EndOfTurn,
}

// LegacyFraming reproduces the malformed user header.
var LegacyFraming = Framing{
	RoleHeader: RoleHeader,
	RoleEnd:    RoleEnd,
	EndOfTurn:  EndOfTurn,
	UserHeader: LegacyUserHeader,
}

// Format renders the prompt text, ending with an open assistant turn.
func (f Framing) Format(system, user string) string {
	userHeader := f.UserHeader
	if userHeader == "" {
		userHeader = f.RoleHeader
	}
	return f.RoleHeader + "system" + f.RoleEnd + "\n" + system + "\n" +
		userHeader + "user" + f.RoleEnd + "\n" + user + "\n" +
		f.EndOfTurn + f.RoleHeader + "assistant" + f.RoleEnd + "\n\n"
}
