package retrieval

import "strings"

// Intent is the classified category of a question.
type Intent string

const (
	IntentDoctors        Intent = "doctors"
	IntentPatients       Intent = "patients"
	IntentAppointments   Intent = "appointments"
	IntentMedications    Intent = "medications"
	IntentLabResults     Intent = "lab_results"
	IntentMedicalRecords Intent = "medical_records"
	IntentTickets        Intent = "tickets"
	IntentOrders         Intent = "orders"
	IntentSearch         Intent = "search"
)

type rule struct {
	intent Intent
	match  func(q string) bool
}

func anyOf(words ...string) func(string) bool {
	return func(q string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}
}

// Rules are evaluated in order; the first match wins.
var rules = []rule{
	{IntentDoctors, anyOf("doctor", "physician")},
	{IntentPatients, anyOf("patient")},
	{IntentAppointments, anyOf("appointment", "schedule", "slot")},
	{IntentMedications, anyOf("medication", "medicine", "drug")},
	{IntentLabResults, anyOf("lab result", "test result", "lab test")},
	{IntentMedicalRecords, func(q string) bool {
		return strings.Contains(q, "medical record") ||
			(strings.Contains(q, "record") && strings.Contains(q, "medical"))
	}},
	{IntentTickets, anyOf("ticket", "support case", "support request")},
	{IntentOrders, anyOf("order", "purchase", "invoice")},
}

// Classify maps question text to an intent, defaulting to IntentSearch.
func Classify(text string) Intent {
	q := strings.ToLower(text)
	for _, r := range rules {
		if r.match(q) {
			return r.intent
		}
	}
	return IntentSearch
}

type entity struct {
	table string
	label string
}

// entities maps the per-entity intents to their table and display label.
var entities = map[Intent]entity{
	IntentDoctors:        {"doctors", "Doctor"},
	IntentPatients:       {"patients", "Patient"},
	IntentAppointments:   {"appointments", "Appointment"},
	IntentMedications:    {"medications", "Medication"},
	IntentLabResults:     {"lab_results", "Lab Result"},
	IntentMedicalRecords: {"medical_records", "Medical Record"},
}
