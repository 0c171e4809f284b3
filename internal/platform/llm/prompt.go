package llm

import "fmt"

const carePlanPrompt = "Generate a detailed care plan based on the following patient information:\n\nPatient information: %s\n\nCare plan:"

// CarePlanPrompt embeds the raw patient information into the generation prompt.
func CarePlanPrompt(patientInfo string) string {
	return fmt.Sprintf(carePlanPrompt, patientInfo)
}
