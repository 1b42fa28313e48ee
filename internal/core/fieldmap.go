package core

// fieldmap.go maps the header names found in third-party exports onto the
// canonical field set. Headers are compared after trimming and lowercasing;
// there is no partial or fuzzy matching here.

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Field is a canonical, locale-independent column name.
type Field string

const (
	FieldName             Field = "name"
	FieldType             Field = "type"
	FieldAccountingNumber Field = "accountingNumber"
	FieldStreet           Field = "street"
	FieldCity             Field = "city"
	FieldState            Field = "state"
	FieldZipCode          Field = "zipCode"
	FieldCountry          Field = "country"
	FieldPhone            Field = "phone"
	FieldEmail            Field = "email"
	FieldWebsite          Field = "website"
	FieldTags             Field = "tags"
	FieldNotes            Field = "notes"

	FieldBedCapacity              Field = "bedCapacity"
	FieldSurgicalRooms            Field = "surgicalRooms"
	FieldSpecialties              Field = "specialties"
	FieldDepartments              Field = "departments"
	FieldLastAuditDate            Field = "lastAuditDate"
	FieldComplianceStatus         Field = "complianceStatus"
	FieldComplianceExpirationDate Field = "complianceExpirationDate"

	FieldContactName  Field = "contactName"
	FieldContactTitle Field = "contactTitle"
	FieldContactEmail Field = "contactEmail"
	FieldContactPhone Field = "contactPhone"
)

// fieldSynonyms lists every accepted header per canonical field, in
// template column order. Entries are lowercase.
var fieldSynonyms = []struct {
	field    Field
	synonyms []string
}{
	{FieldName, []string{"name", "institution name", "institution", "organization", "organisation", "nom", "nom de l'établissement", "établissement", "etablissement", "raison sociale"}},
	{FieldType, []string{"type", "institution type", "category", "type d'établissement", "type d'etablissement", "catégorie", "categorie"}},
	{FieldAccountingNumber, []string{"accountingnumber", "accounting number", "accounting code", "account number", "finess", "numéro finess", "numero finess", "numéro comptable", "numero comptable", "code comptable"}},
	{FieldStreet, []string{"street", "address", "street address", "address line 1", "adresse", "rue", "voie"}},
	{FieldCity, []string{"city", "town", "ville", "commune", "localité", "localite"}},
	{FieldState, []string{"state", "region", "province", "région", "département", "departement"}},
	{FieldZipCode, []string{"zipcode", "zip code", "zip", "postal code", "postcode", "code postal", "cp"}},
	{FieldCountry, []string{"country", "pays"}},
	{FieldPhone, []string{"phone", "telephone", "phone number", "téléphone", "tél", "tel"}},
	{FieldEmail, []string{"email", "e-mail", "email address", "courriel", "adresse email", "mail"}},
	{FieldWebsite, []string{"website", "web site", "url", "site web", "site internet"}},
	{FieldTags, []string{"tags", "labels", "étiquettes", "etiquettes", "mots-clés", "mots-cles"}},
	{FieldNotes, []string{"notes", "note", "comments", "commentaires", "remarques"}},
	{FieldBedCapacity, []string{"bedcapacity", "bed capacity", "beds", "number of beds", "nombre de lits", "lits", "capacité", "capacite"}},
	{FieldSurgicalRooms, []string{"surgicalrooms", "surgical rooms", "operating rooms", "salles d'opération", "salles d'operation", "blocs opératoires", "blocs operatoires"}},
	{FieldSpecialties, []string{"specialties", "specialities", "specialty", "spécialités", "specialites", "spécialité"}},
	{FieldDepartments, []string{"departments", "services", "départements médicaux", "pôles", "poles"}},
	{FieldLastAuditDate, []string{"lastauditdate", "last audit date", "last audit", "date du dernier audit", "dernier audit"}},
	{FieldComplianceStatus, []string{"compliancestatus", "compliance status", "compliance", "statut de conformité", "statut de conformite", "conformité", "conformite"}},
	{FieldComplianceExpirationDate, []string{"complianceexpirationdate", "compliance expiration date", "compliance expiry", "date d'expiration de conformité", "date d'expiration de conformite", "expiration conformité"}},
	{FieldContactName, []string{"contactname", "contact name", "contact", "nom du contact", "interlocuteur"}},
	{FieldContactTitle, []string{"contacttitle", "contact title", "contact role", "fonction du contact", "fonction", "titre"}},
	{FieldContactEmail, []string{"contactemail", "contact email", "contact e-mail", "email du contact", "courriel du contact"}},
	{FieldContactPhone, []string{"contactphone", "contact phone", "téléphone du contact", "telephone du contact", "tél contact"}},
}

var (
	headerAliases   map[string]Field
	canonicalFields []Field
	aliasTargets    []string
)

func init() {
	headerAliases = make(map[string]Field)
	for _, fs := range fieldSynonyms {
		canonicalFields = append(canonicalFields, fs.field)
		for _, s := range fs.synonyms {
			headerAliases[s] = fs.field
			aliasTargets = append(aliasTargets, s)
		}
	}
}

// profileFields trigger creation of a Profile when any is non-empty.
var profileFields = []Field{
	FieldBedCapacity, FieldSurgicalRooms, FieldSpecialties, FieldDepartments,
	FieldLastAuditDate, FieldComplianceStatus, FieldComplianceExpirationDate,
}

// contactFields trigger creation of a Contact when any is non-empty.
var contactFields = []Field{
	FieldContactName, FieldContactTitle, FieldContactEmail, FieldContactPhone,
}

// MapHeader returns the canonical field for a raw CSV header.
func MapHeader(raw string) (Field, bool) {
	f, ok := headerAliases[strings.ToLower(strings.TrimSpace(raw))]
	return f, ok
}

// CanonicalFields returns every canonical field in template order.
func CanonicalFields() []Field {
	return append([]Field(nil), canonicalFields...)
}

// Synonyms returns the accepted headers for f.
func Synonyms(f Field) []string {
	for _, fs := range fieldSynonyms {
		if fs.field == f {
			return append([]string(nil), fs.synonyms...)
		}
	}
	return nil
}

// SuggestField returns the canonical field whose synonym is the closest
// fuzzy match for an unmapped header, if any.
func SuggestField(raw string) (Field, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if len(needle) < 3 {
		return "", false
	}
	ranks := fuzzy.RankFindNormalizedFold(needle, aliasTargets)
	if len(ranks) == 0 {
		return "", false
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return headerAliases[best.Target], true
}
