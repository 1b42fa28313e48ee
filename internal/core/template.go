package core

import "strings"

// templateExample is the illustrative row of the downloadable template.
// It deliberately contains a comma and a quote so the output exercises
// CSV quoting.
var templateExample = map[Field]string{
	FieldName:                     "General Hospital",
	FieldType:                     "hospital",
	FieldAccountingNumber:         "ACCT-000123",
	FieldStreet:                   "123 Main Street, Building B",
	FieldCity:                     "Healthcare City",
	FieldState:                    "CA",
	FieldZipCode:                  "90210",
	FieldCountry:                  "US",
	FieldPhone:                    "+1 555 0100",
	FieldEmail:                    "info@general-hospital.example",
	FieldWebsite:                  "https://general-hospital.example",
	FieldTags:                     "public;teaching",
	FieldNotes:                    `Main campus, "north wing" entrance`,
	FieldBedCapacity:              "250",
	FieldSurgicalRooms:            "12",
	FieldSpecialties:              "cardiology;oncology",
	FieldDepartments:              "emergency;radiology",
	FieldLastAuditDate:            "2024-03-15",
	FieldComplianceStatus:         "compliant",
	FieldComplianceExpirationDate: "2026-12-31",
	FieldContactName:              "Jane Doe",
	FieldContactTitle:             "Procurement Manager",
	FieldContactEmail:             "jane.doe@general-hospital.example",
	FieldContactPhone:             "+1 555 0101",
}

// GenerateTemplate returns a CSV with every canonical column and one
// example row. The output parses and validates without issues.
func GenerateTemplate() string {
	fields := CanonicalFields()
	header := make([]string, len(fields))
	example := make([]string, len(fields))
	for i, f := range fields {
		header[i] = string(f)
		example[i] = templateExample[f]
	}

	var b strings.Builder
	b.WriteString(JoinLine(header))
	b.WriteString("\n")
	b.WriteString(JoinLine(example))
	b.WriteString("\n")
	return b.String()
}
