package arbiscan

import "encoding/json"

// envelope is the outer shape of every Etherscan-style API response.
// Status "1" is success; status "0" covers both "no records" and real
// errors, distinguished by Message.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// txRecord is one entry of the account txlist action. All numeric fields
// arrive as decimal strings.
type txRecord struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
}

// tokenTransferRecord is one entry of the account tokentx action.
type tokenTransferRecord struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	LogIndex        string `json:"logIndex"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// priceRecord is one entry of the stats price history actions.
type priceRecord struct {
	EthUSD        string `json:"ethusd"`
	TokenPriceUSD string `json:"tokenPriceUSD"`
}

// Cursor is an explicit, resumable pagination position. Threading it
// through calls (instead of hiding it in iterator state) lets a retry
// resume the exact page that failed without duplicating earlier pages.
type Cursor struct {
	Page int
}

// FirstPage returns the cursor for the start of a history.
func FirstPage() Cursor { return Cursor{Page: 1} }

// Next returns the cursor for the following page.
func (c Cursor) Next() Cursor { return Cursor{Page: c.Page + 1} }
