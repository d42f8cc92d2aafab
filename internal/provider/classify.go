package provider

type RequestType string

const (
	RequestText            RequestType = "text"
	RequestVision          RequestType = "vision"
	RequestDocument        RequestType = "document"
	RequestImageGeneration RequestType = "image_generation"
	RequestImageEdit       RequestType = "image_edit"
)

// RequestTypes lists every request type.
var RequestTypes = []RequestType{
	RequestText,
	RequestVision,
	RequestDocument,
	RequestImageGeneration,
	RequestImageEdit,
}

// requiredCapabilities is the dispatch table from request type to the
// capabilities a model must declare to serve it.
var requiredCapabilities = map[RequestType][]Capability{
	RequestText:            {CapText},
	RequestVision:          {CapText, CapVision},
	RequestDocument:        {CapText, CapVision},
	RequestImageGeneration: {CapImageGeneration},
	RequestImageEdit:       {CapImageEdit},
}

// RequiredCapabilities returns the capabilities needed for rt.
func RequiredCapabilities(rt RequestType) []Capability {
	return requiredCapabilities[rt]
}

// Classify decides the intent of a request. Order matters: an image response
// with an image attachment is an edit even though it is also a vision input.
func Classify(req *Request) RequestType {
	hasImage := false
	hasDocument := false
	for _, a := range req.Attachments {
		switch a.Type() {
		case AttachmentImage:
			hasImage = true
		case AttachmentPDF, AttachmentText:
			hasDocument = true
		}
	}

	switch {
	case req.Format() == FormatImage && hasImage:
		return RequestImageEdit
	case req.Format() == FormatImage:
		return RequestImageGeneration
	case hasImage:
		return RequestVision
	case hasDocument:
		return RequestDocument
	default:
		return RequestText
	}
}
