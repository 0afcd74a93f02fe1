package orders

const (
	// USDToHTG is the fixed display rate used for estimates.
	USDToHTG = 133.0

	DefaultAsset    = "USDT"
	DefaultNetwork  = "TRON"
	DefaultCurrency = "USD"
)

// Quote is the estimate shown before buying. USDT is bought one to one with USD.
type Quote struct {
	USD  float64
	HTG  float64
	USDT float64
}

func NewQuote(usd float64) Quote {
	if usd < 0 {
		usd = 0
	}
	return Quote{USD: usd, HTG: usd * USDToHTG, USDT: usd}
}
