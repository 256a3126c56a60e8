package core

// RecognitionRequest describes a single speech recognition call.
type RecognitionRequest struct {
	Audio      []byte
	Filename   string
	Engine     string
	Language   string
	Credential string
}
