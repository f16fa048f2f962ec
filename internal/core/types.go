package core

import "nurserycore/pkg/domain"

type (
	EntityType         = domain.EntityType
	BatchStatus        = domain.BatchStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Batch              = domain.Batch
	LogEntry           = domain.LogEntry
	Protocol           = domain.Protocol
	ProtocolStage      = domain.ProtocolStage
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
)

const (
	EntityBatch    = domain.EntityBatch
	EntityProtocol = domain.EntityProtocol
)

const (
	StatusPropagation  = domain.StatusPropagation
	StatusPlugsLiners  = domain.StatusPlugsLiners
	StatusPotted       = domain.StatusPotted
	StatusReadyForSale = domain.StatusReadyForSale
	StatusLookingGood  = domain.StatusLookingGood
	StatusArchived     = domain.StatusArchived
	StatusIncoming     = domain.StatusIncoming
	StatusPlanned      = domain.StatusPlanned
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
