package core

const (
	maskPrefixLength = 8
	maskSuffixLength = 4
	maskPlaceholder  = "***"
)

// MaskCredential hides a secret for logging. It keeps the first 8 and last 4
// characters when the credential is long enough for that to hide something,
// and returns a fixed placeholder otherwise.
func MaskCredential(credential string) string {
	runes := []rune(credential)
	if len(runes) <= maskPrefixLength+maskSuffixLength {
		return maskPlaceholder
	}

	return string(runes[:maskPrefixLength]) + "..." + string(runes[len(runes)-maskSuffixLength:])
}
