package design

import "strings"

// DefaultInstruction is used when the caller supplies no instruction. It
// encodes the compositing constraints for the branded pedestal backgrounds:
// the product floats above the pedestal, the contact shadow stays on the
// pedestal's top face, and the product keeps its aspect ratio uncropped.
func DefaultInstruction() string {
	parts := []string{
		"Place the product from the second image onto the pedestal in the first image.",
		"The product floats slightly above the pedestal.",
		"Cast a soft contact shadow restricted to the top face of the pedestal.",
		"Scale the product to match the pedestal width.",
		"Preserve the original aspect ratio of the product.",
		"Do not crop the product.",
	}
	return strings.Join(parts, " ")
}
