package domain

// AuditEvent is one raw directory audit record as returned by the identity provider.
// Every field is optional on the wire; absent values decode to their zero value.
type AuditEvent struct {
	ActivityDateTime    string           `json:"activityDateTime"`
	ActivityDisplayName string           `json:"activityDisplayName"`
	OperationType       string           `json:"operationType"`
	Result              string           `json:"result"`
	CorrelationID       string           `json:"correlationId"`
	InitiatedBy         Initiator        `json:"initiatedBy"`
	TargetResources     []TargetResource `json:"targetResources"`
}

// Initiator is the "initiated by" block. At most one of User or App is normally set.
type Initiator struct {
	User *InitiatorUser `json:"user"`
	App  *InitiatorApp  `json:"app"`
}

type InitiatorUser struct {
	UserPrincipalName string `json:"userPrincipalName"`
}

type InitiatorApp struct {
	DisplayName string `json:"displayName"`
}

// TargetResource is one resource touched by the audited activity.
type TargetResource struct {
	ID                 string             `json:"id"`
	UserPrincipalName  string             `json:"userPrincipalName"`
	ModifiedProperties []ModifiedProperty `json:"modifiedProperties"`
}

type ModifiedProperty struct {
	DisplayName string `json:"displayName"`
	NewValue    string `json:"newValue"`
}
