package taxonomy

// Default returns the built-in production keyword table.
func Default() *Taxonomy {
	t, err := New(defaultTable)
	if err != nil {
		// The inline table is validated by tests; a broken build is the only
		// way to reach this.
		panic(err)
	}
	return t
}

var defaultTable = Table{
	"forex": {
		"EURUSD": {"eurusd", "eur/usd", "euro dollar", "euro-dollar"},
		"GBPUSD": {"gbpusd", "gbp/usd", "cable", "pound dollar"},
		"USDJPY": {"usdjpy", "usd/jpy", "dollar yen", "yen"},
		"USDCHF": {"usdchf", "usd/chf", "swiss franc"},
		"AUDUSD": {"audusd", "aud/usd", "aussie dollar"},
		"USDCAD": {"usdcad", "usd/cad", "loonie"},
		"DXY":    {"dollar index", "dxy", "greenback"},
	},
	"crypto": {
		"BTC":  {"bitcoin", "btc", "btcusd"},
		"ETH":  {"ethereum", "eth", "ether"},
		"SOL":  {"solana", "sol/usd"},
		"XRP":  {"xrp", "ripple"},
		"DOGE": {"dogecoin", "doge"},
	},
	"commodities": {
		"XAUUSD": {"gold", "xauusd", "bullion"},
		"XAGUSD": {"silver", "xagusd"},
		"WTI":    {"crude oil", "wti", "west texas"},
		"BRENT":  {"brent"},
		"NATGAS": {"natural gas", "natgas"},
		"COPPER": {"copper"},
	},
	"stocks": {
		"AAPL": {"apple", "aapl"},
		"MSFT": {"microsoft", "msft"},
		"NVDA": {"nvidia", "nvda"},
		"TSLA": {"tesla", "tsla"},
		"AMZN": {"amazon", "amzn"},
		"META": {"meta platforms", "facebook"},
		"SPX":  {"s&p 500", "sp500", "spx"},
		"NDX":  {"nasdaq", "ndx"},
	},
}
