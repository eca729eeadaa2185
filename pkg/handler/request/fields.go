package request

// Format is the body layout of a query response.
type Format int

const (
	// FormatNDJSON streams one JSON document per line as variants arrive.
	FormatNDJSON Format = iota
	// FormatJSON collects the whole result into one array.
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatNDJSON:
		return "ndjson"
	case FormatJSON:
		return "json"
	default:
		return "ndjson"
	}
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "application/x-ndjson"
}

func ParseFormat(format string) Format {
	switch format {
	case "json":
		return FormatJSON
	default:
		return FormatNDJSON // default to streaming
	}
}
