package extractor

// Prompt preamble shared by all families. The model must answer with a
// bare JSON array so parseFields can validate it.
const promptSuffix = `

Respond ONLY with a JSON array. Each element must contain:
- "value": the extracted value
- "subtype": one of the subtypes listed above
- "confidence": your confidence this value is correct (0.0 to 1.0)
- "justification": one sentence on why this value was extracted
- "raw_text": the exact text the value was taken from
- "page": the page number if evident, else 0
- "section": the section heading if evident, else ""

Return [] if nothing relevant appears. No prose, no markdown fences.`

const datesPrompt = `You are reviewing a compliance document for a project audit.

Extract every date relevant to the project lifecycle. Subtypes:
- "project_start_date": when project activity began
- "sampling_date": when samples or field measurements were taken
- "issuance_date": when a permit, certificate, or title was issued
- "expiry_date": when a permit or certificate expires

Dates must be normalized to ISO format (YYYY-MM-DD).` + promptSuffix

const tenurePrompt = `You are reviewing a compliance document for a project audit.

Extract land tenure and ownership facts. Subtypes:
- "owner_name": the full name of a land owner or title holder
- "tenure_type": the form of tenure (freehold, leasehold, customary)
- "parcel_reference": the legal parcel or lot reference
- "ownership_share": a percentage share of ownership (0-100)` + promptSuffix

const identifiersPrompt = `You are reviewing a compliance document for a project audit.

Extract project and registration identifiers. Subtypes:
- "project_id": the project's registry identifier
- "certificate_number": a certificate or permit number
- "registration_number": a company or land registration number

Keep identifiers verbatim, including prefixes and separators.` + promptSuffix

// promptFor returns the system prompt for a family.
func promptFor(family Family) string {
	switch family {
	case FamilyDates:
		return datesPrompt
	case FamilyTenure:
		return tenurePrompt
	case FamilyIdentifiers:
		return identifiersPrompt
	default:
		return ""
	}
}
