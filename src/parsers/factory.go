package parsers

import (
	"fmt"
	"strings"

	"github.com/username/holdfolio/backend/src/parsers/generic"
	"github.com/username/holdfolio/backend/src/parsers/zerodha"
)

// GetParser returns the parser registered for a broker code.
func GetParser(brokerCode string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(brokerCode)) {
	case zerodha.BrokerCode:
		return zerodha.NewParser(), nil
	case generic.BrokerCode:
		return generic.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for broker: %s", brokerCode)
	}
}

// Detect picks the Zerodha parser when "zerodha" appears anywhere in the
// content or filename, and the generic parser otherwise.
func Detect(content, filename string) Parser {
	if strings.Contains(strings.ToLower(content), zerodha.BrokerCode) ||
		strings.Contains(strings.ToLower(filename), zerodha.BrokerCode) {
		return zerodha.NewParser()
	}
	return generic.NewParser()
}

// SampleZerodhaCSV is a minimal Zerodha tradebook offered to users as a template.
const SampleZerodhaCSV = `Symbol,ISIN,Trade Date,Exchange,Segment,Series,Trade Type,Quantity,Price,Order ID,Trade ID
RELIANCE,INE002A01018,2025-08-15,NSE,EQ,EQ,BUY,10,2850.75,12345,67890
TCS,INE467B01029,2025-08-14,NSE,EQ,EQ,BUY,5,4150.20,12346,67891
HDFCBANK,INE040A01034,2025-08-13,NSE,EQ,EQ,BUY,8,1725.90,12347,67892
INFY,INE009A01021,2025-08-12,NSE,EQ,EQ,SELL,3,1840.50,12348,67893
ITC,INE154A01025,2025-08-11,NSE,EQ,EQ,BUY,20,460.25,12349,67894
`
