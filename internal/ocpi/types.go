package ocpi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// OCPI carries quantities as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Modules addressed under an endpoint's base URL.
const (
	ModuleLocations = "locations"
	ModuleSessions  = "sessions"
	ModuleCdrs      = "cdrs"
	ModuleTokens    = "tokens"
	ModuleCommands  = "commands"
)

const StatusCodeSuccess = 1000

// Response is the envelope wrapping every OCPI payload.
type Response struct {
	Data          json.RawMessage `json:"data,omitempty"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (r Response) Succeeded() bool {
	return r.StatusCode >= 1000 && r.StatusCode < 2000
}

// EVSE statuses.
const (
	EvseAvailable   = "AVAILABLE"
	EvseBlocked     = "BLOCKED"
	EvseCharging    = "CHARGING"
	EvseInoperative = "INOPERATIVE"
	EvseOutOfOrder  = "OUTOFORDER"
	EvsePlanned     = "PLANNED"
	EvseRemoved     = "REMOVED"
	EvseReserved    = "RESERVED"
	EvseUnknown     = "UNKNOWN"
)

// Session statuses.
const (
	SessionActive    = "ACTIVE"
	SessionCompleted = "COMPLETED"
	SessionInvalid   = "INVALID"
	SessionPending   = "PENDING"
)

// Connector power types.
const (
	PowerAC1Phase = "AC_1_PHASE"
	PowerAC3Phase = "AC_3_PHASE"
	PowerDC       = "DC"
)

type GeoLocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

type Location struct {
	ID          string           `json:"id" validate:"required"`
	Type        string           `json:"type,omitempty"`
	Name        string           `json:"name,omitempty"`
	Address     string           `json:"address,omitempty"`
	City        string           `json:"city,omitempty"`
	PostalCode  string           `json:"postal_code,omitempty"`
	Country     string           `json:"country,omitempty"`
	Coordinates GeoLocation      `json:"coordinates"`
	Operator    *BusinessDetails `json:"operator,omitempty"`
	EVSEs       []EVSE           `json:"evses,omitempty"`
	TimeZone    string           `json:"time_zone,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`
}

type EVSE struct {
	UID               string       `json:"uid"`
	EvseID            string       `json:"evse_id,omitempty"`
	Status            string       `json:"status"`
	Connectors        []Connector  `json:"connectors"`
	Coordinates       *GeoLocation `json:"coordinates,omitempty"`
	PhysicalReference string       `json:"physical_reference,omitempty"`
	FloorLevel        string       `json:"floor_level,omitempty"`
	LastUpdated       time.Time    `json:"last_updated"`
}

type Connector struct {
	ID          string    `json:"id"`
	Standard    string    `json:"standard"`
	Format      string    `json:"format"`
	PowerType   string    `json:"power_type"`
	Voltage     int       `json:"voltage"`
	Amperage    int       `json:"amperage"`
	TariffID    string    `json:"tariff_id,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

type Token struct {
	UID          string    `json:"uid"`
	Type         string    `json:"type"`
	AuthID       string    `json:"auth_id"`
	VisualNumber string    `json:"visual_number,omitempty"`
	Issuer       string    `json:"issuer"`
	Valid        bool      `json:"valid"`
	Whitelist    string    `json:"whitelist"`
	Language     string    `json:"language,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

type CdrDimension struct {
	Type   string          `json:"type"`
	Volume decimal.Decimal `json:"volume"`
}

type ChargingPeriod struct {
	StartDateTime time.Time      `json:"start_date_time"`
	Dimensions    []CdrDimension `json:"dimensions"`
}

type Session struct {
	ID              string           `json:"id" validate:"required"`
	StartDateTime   time.Time        `json:"start_datetime" validate:"required"`
	EndDateTime     *time.Time       `json:"end_datetime,omitempty"`
	Kwh             decimal.Decimal  `json:"kwh"`
	AuthID          string           `json:"auth_id" validate:"required"`
	AuthMethod      string           `json:"auth_method"`
	Location        Location         `json:"location"`
	MeterID         string           `json:"meter_id,omitempty"`
	Currency        string           `json:"currency"`
	ChargingPeriods []ChargingPeriod `json:"charging_periods,omitempty"`
	TotalCost       *decimal.Decimal `json:"total_cost,omitempty"`
	Status          string           `json:"status" validate:"required"`
	LastUpdated     time.Time        `json:"last_updated"`
}

type Cdr struct {
	ID               string           `json:"id" validate:"required"`
	SessionID        string           `json:"session_id,omitempty"`
	StartDateTime    time.Time        `json:"start_date_time" validate:"required"`
	StopDateTime     time.Time        `json:"stop_date_time" validate:"required"`
	AuthID           string           `json:"auth_id"`
	AuthMethod       string           `json:"auth_method"`
	Location         Location         `json:"location"`
	MeterID          string           `json:"meter_id,omitempty"`
	Currency         string           `json:"currency"`
	TariffID         string           `json:"tariff_id,omitempty"`
	ChargingPeriods  []ChargingPeriod `json:"charging_periods"`
	TotalCost        decimal.Decimal  `json:"total_cost"`
	TotalEnergy      decimal.Decimal  `json:"total_energy"`
	TotalTime        decimal.Decimal  `json:"total_time"`
	TotalParkingTime decimal.Decimal  `json:"total_parking_time"`
	Remark           string           `json:"remark,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// SessionRef returns the session the CDR settles.
func (c Cdr) SessionRef() string {
	if c.SessionID != "" {
		return c.SessionID
	}
	return c.ID
}

const (
	CommandStartSession = "START_SESSION"
	CommandStopSession  = "STOP_SESSION"
)

type StartSession struct {
	ResponseURL string `json:"response_url"`
	Token       Token  `json:"token"`
	LocationID  string `json:"location_id"`
	EvseUID     string `json:"evse_uid,omitempty"`
}

type StopSession struct {
	ResponseURL string `json:"response_url"`
	SessionID   string `json:"session_id"`
}

type CommandResponse struct {
	Result  string `json:"result"`
	Timeout int    `json:"timeout,omitempty"`
}
