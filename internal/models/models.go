package models

import (
	"time"

	"roaming/internal/ocpi"
	"roaming/internal/syncresult"

	"github.com/shopspring/decimal"
)

// Our role towards a roaming partner.
const (
	RoleCPO  = "CPO"
	RoleEMSP = "EMSP"
)

const (
	EndpointConnected    = "CONNECTED"
	EndpointDisconnected = "DISCONNECTED"
)

// Endpoint is a roaming partner. It is re-read and persisted with a version
// check at the end of each run; nothing keeps it in memory between runs.
type Endpoint struct {
	ID          string `validate:"required"`
	TenantID    string `validate:"required"`
	Name        string `validate:"required"`
	Role        string `validate:"oneof=CPO EMSP"`
	BaseURL     string `validate:"required,url"`
	Token       string `validate:"required"`
	CountryCode string `validate:"required,len=2"`
	PartyID     string `validate:"required,len=3"`
	Status      string
	Version     int64
	LastSyncAt  *time.Time
	Outcomes    map[string]SyncOutcome
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordOutcome stores the outcome of one job run.
func (e *Endpoint) RecordOutcome(job string, s syncresult.Summary, at time.Time) {
	if e.Outcomes == nil {
		e.Outcomes = make(map[string]SyncOutcome)
	}
	e.Outcomes[job] = NewSyncOutcome(s, at)
	e.LastSyncAt = &at
}

type SyncOutcome struct {
	SuccessCount      int       `json:"successCount"`
	FailureCount      int       `json:"failureCount"`
	TotalCount        int       `json:"totalCount"`
	FailedResourceIDs []string  `json:"failedResourceIds"`
	LastRunAt         time.Time `json:"lastRunAt"`
}

func NewSyncOutcome(s syncresult.Summary, at time.Time) SyncOutcome {
	ids := make([]string, len(s.FailedResourceIDs))
	copy(ids, s.FailedResourceIDs)
	return SyncOutcome{
		SuccessCount:      s.SuccessCount,
		FailureCount:      s.FailureCount,
		TotalCount:        s.TotalCount,
		FailedResourceIDs: ids,
		LastRunAt:         at,
	}
}

type Company struct {
	ID       string
	TenantID string
	Name     string
	Issuer   bool
}

type Address struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Site struct {
	ID          string
	TenantID    string
	CompanyID   string
	Name        string
	Issuer      bool
	Public      bool
	Address     Address
	Coordinates *Coordinates
	CreatedAt   time.Time
}

type SiteArea struct {
	ID          string
	TenantID    string
	SiteID      string
	Name        string
	Issuer      bool
	Address     Address
	Coordinates *Coordinates
	CreatedAt   time.Time
}

// Connector statuses, OCPP vocabulary.
const (
	ConnectorAvailable   = "Available"
	ConnectorCharging    = "Charging"
	ConnectorReserved    = "Reserved"
	ConnectorUnavailable = "Unavailable"
	ConnectorFaulted     = "Faulted"
)

type Connector struct {
	ConnectorID int    `json:"connectorId"`
	RemoteID    string `json:"remoteId,omitempty"`
	Type        string `json:"type"`
	CurrentType string `json:"currentType"`
	PowerW      int    `json:"powerW"`
	Voltage     int    `json:"voltage"`
	Amperage    int    `json:"amperage"`
	Phases      int    `json:"phases"`
	Status      string `json:"status"`
}

// StationRoamingData is the protocol sidecar of a station mirrored from a partner.
type StationRoamingData struct {
	EndpointID string     `json:"endpointId"`
	LocationID string     `json:"locationId"`
	Evse       *ocpi.EVSE `json:"evse,omitempty"`
}

type ChargingStation struct {
	ID               string
	TenantID         string
	CompanyID        string
	SiteID           string
	SiteAreaID       string
	Issuer           bool
	Public           bool
	Status           string
	Coordinates      *Coordinates
	Connectors       []Connector
	RemoteLocationID string
	RemoteEvseUID    string
	RoamingData      *StationRoamingData
	LastSeenAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Tag is a local authorization token (RFID card, app token).
type Tag struct {
	ID            string
	TenantID      string
	UserID        string
	Description   string
	VisualNumber  string
	Active        bool
	Issuer        bool
	LastChangedOn time.Time
}

type Transaction struct {
	ID                   string
	TenantID             string
	ChargingStationID    string
	ConnectorID          int
	TagID                string
	CompanyID            string
	SiteID               string
	SiteAreaID           string
	Issuer               bool
	StartedAt            time.Time
	MeterStartWh         int64
	CurrentConsumptionWh int64
	CurrentPrice         decimal.Decimal
	Currency             string
	LastConsumptionAt    *time.Time
	Stop                 *TransactionStop
	RoamingData          *RoamingData
}

type TransactionStop struct {
	StoppedAt          time.Time       `json:"stoppedAt"`
	MeterStopWh        int64           `json:"meterStopWh"`
	TotalConsumptionWh int64           `json:"totalConsumptionWh"`
	TotalDurationSecs  int64           `json:"totalDurationSecs"`
	Price              decimal.Decimal `json:"price"`
	Currency           string          `json:"currency,omitempty"`
	TagID              string          `json:"tagId,omitempty"`
}

// RoamingData is the protocol sub-record of a transaction. Cdr is written
// once; storage keeps an existing Cdr when the record is saved again.
type RoamingData struct {
	EndpointID       string        `json:"endpointId,omitempty"`
	Session          *ocpi.Session `json:"session,omitempty"`
	Cdr              *ocpi.Cdr     `json:"cdr,omitempty"`
	SessionCheckedOn *time.Time    `json:"sessionCheckedOn,omitempty"`
	CdrCheckedOn     *time.Time    `json:"cdrCheckedOn,omitempty"`
}

// HasCdr reports whether a CDR is already attached.
func (t Transaction) HasCdr() bool {
	return t.RoamingData != nil && t.RoamingData.Cdr != nil
}

type Tariff struct {
	TariffID    string
	TenantID    string
	SiteID      string
	PricePerKwh decimal.Decimal
	Currency    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	CommandQueued = "Queued"
	CommandSent   = "Sent"
	CommandAcked  = "Acked"
	CommandFailed = "Failed"
)

type Command struct {
	CommandID    string
	TenantID     string
	EndpointID   string
	Type         string
	PayloadJSON  []byte
	Status       string
	ResponseJSON []byte
	Error        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
