package imagegen

import "fmt"

// BuildInstruction frames the user prompt, verbatim, for a multi-part request.
// The reference images follow this text part in the same content.
func BuildInstruction(prompt string) string {
	return fmt.Sprintf("Generate a new image based on this prompt: \"%s\". Use the provided reference images as inspiration for style, composition, and visual elements.", prompt)
}
