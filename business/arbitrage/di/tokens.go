// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/themule888/spread-scanner/business/arbitrage/app"
	"github.com/themule888/spread-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Scanner = di.NewToken[*app.Scanner]("arbitrage.Scanner")
)

// Private dependency tokens - internal to arbitrage module
var (
	Analyzer = di.NewToken[*app.Analyzer]("arbitrage:analyzer")
	Sink     = di.NewToken[app.Sink]("arbitrage:sink")
)

// Helper functions for type-safe access
func GetScanner(c di.ServiceRegistry) *app.Scanner {
	return di.GetToken(c, Scanner)
}

func GetAnalyzer(c di.ServiceRegistry) *app.Analyzer {
	return di.GetToken(c, Analyzer)
}

func GetSink(c di.ServiceRegistry) app.Sink {
	return di.GetToken(c, Sink)
}
