package sph

// QueryType selects which patient flow the query form is posted for.
type QueryType int

const (
	ReturningPatient QueryType = iota
	NewPatient
)

func (t QueryType) fieldValue() string {
	if t == NewPatient {
		return "rbnFirstTime"
	}
	return "rbnSeveralTimes"
}

// IdType is the kind of identifier the patient registered with. The
// wire value is the integer code of the matching radio button.
type IdType int

const (
	IdCard IdType = iota + 1
	MedicalRecord
	Passport
	ResidentCertificate
	EntryExitPermit
)

func (t IdType) fieldValue() string {
	return map[IdType]string{
		IdCard:              "1",
		MedicalRecord:       "2",
		Passport:            "3",
		ResidentCertificate: "4",
		EntryExitPermit:     "5",
	}[t]
}

// QueryRequest is one "look up my existing appointments" request.
// BirthDate is the month and day in MMdd form, the format the site's
// own placeholder text asks for.
type QueryRequest struct {
	QueryType QueryType
	IdType    IdType
	IdNumber  string
	BirthDate string
}

type QueryStatus int

const (
	QuerySuccess QueryStatus = iota
	QueryCaptchaError
	QueryDataNotFound
	QueryValidationError
	QueryUnknownResponse
	QueryOperationError
)

func (s QueryStatus) String() string {
	switch s {
	case QuerySuccess:
		return "success"
	case QueryCaptchaError:
		return "captcha_error"
	case QueryDataNotFound:
		return "data_not_found"
	case QueryValidationError:
		return "validation_error"
	case QueryUnknownResponse:
		return "unknown_response"
	case QueryOperationError:
		return "operation_error"
	}
	return "invalid"
}

// QueryOutcome is the single typed result of one query run. Exactly one
// status is produced per classification pass; Html carries the raw
// response only for statuses derived from a server page.
type QueryOutcome struct {
	Status  QueryStatus
	Message string
	Html    string
}

// BookingParameters are the opaque tokens carried by an available
// slot's link. Together they name one bookable (date, doctor, session)
// triple. They are passed through verbatim, never decomposed.
type BookingParameters struct {
	RmsData   string
	DptName   string
	Dpt       string
	DptDptuid string
}

// BookingRequest is one "book this slot" request. BirthDate and
// IsFirstVisit are asked for on the confirmation page, not the identity
// verification page.
type BookingRequest struct {
	Parameters   BookingParameters
	IdType       IdType
	IdNumber     string
	BirthDate    string
	IsFirstVisit bool
}

type BookingStatus int

const (
	BookingSuccess BookingStatus = iota
	BookingCaptchaError
	BookingValidationError
	BookingSlotUnavailable
	BookingUnknownResponse
	BookingOperationError
)

func (s BookingStatus) String() string {
	switch s {
	case BookingSuccess:
		return "success"
	case BookingCaptchaError:
		return "captcha_error"
	case BookingValidationError:
		return "validation_error"
	case BookingSlotUnavailable:
		return "slot_unavailable"
	case BookingUnknownResponse:
		return "unknown_response"
	case BookingOperationError:
		return "operation_error"
	}
	return "invalid"
}

type BookingOutcome struct {
	Status  BookingStatus
	Message string
	Html    string
}

// verificationResult is what the identity-verification response can
// mean: proceed to confirmation, a flow this client does not support,
// or a terminal failure.
type verificationKind int

const (
	verificationConfirm verificationKind = iota
	verificationNewPatient
	verificationFailed
)

type verificationResult struct {
	kind verificationKind
	html string
	// tokens parsed from the confirmation page, distinct from the
	// verification page's own state
	state SessionState
	// set iff kind == verificationFailed
	outcome BookingOutcome
}
