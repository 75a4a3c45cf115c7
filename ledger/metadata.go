package ledger

// OutputMetadata is what a node reports about where and when an output was booked.
type OutputMetadata struct {
	BlockID       BlockID       `json:"blockId"`
	TransactionID TransactionID `json:"transactionId"`
	OutputIndex   uint16        `json:"outputIndex"`
	Spent         bool          `json:"isSpent"`
	// BookedIndex and BookedTime identify the milestone that confirmed the output.
	BookedIndex uint32 `json:"milestoneIndexBooked"`
	BookedTime  uint32 `json:"milestoneTimestampBooked"`
}

func (m OutputMetadata) MarshalCBOR() ([]byte, error) {
	return encodeList(m.BlockID[:], m.TransactionID[:], m.OutputIndex, m.Spent, m.BookedIndex, m.BookedTime)
}

func (m *OutputMetadata) UnmarshalCBOR(data []byte) error {
	items, err := decodeList(data, 6, "output metadata")
	if err != nil {
		return err
	}
	var out OutputMetadata
	if err := decodeFixed(items[0], out.BlockID[:], "block id"); err != nil {
		return err
	}
	if err := decodeFixed(items[1], out.TransactionID[:], "transaction id"); err != nil {
		return err
	}
	if err := Decode(items[2], &out.OutputIndex); err != nil {
		return err
	}
	if err := Decode(items[3], &out.Spent); err != nil {
		return err
	}
	if err := Decode(items[4], &out.BookedIndex); err != nil {
		return err
	}
	if err := Decode(items[5], &out.BookedTime); err != nil {
		return err
	}
	*m = out
	return nil
}

// CloneOutput returns a deep copy of o by round-tripping its canonical encoding.
func CloneOutput(o Output) (Output, error) {
	data, err := EncodeOutput(o)
	if err != nil {
		return nil, err
	}
	return DecodeOutput(data)
}
