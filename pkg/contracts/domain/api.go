package domain

// ResolveRequest asks for point-in-time identity resolution of symbols.
type ResolveRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
	AsOf    string   `json:"as_of" validate:"required,datetime=2006-01-02"`
}

// ResolvedSecurity is one symbol's resolution result.
type ResolvedSecurity struct {
	Symbol   string          `json:"symbol"`
	Resolved bool            `json:"resolved"`
	Record   *SecurityRecord `json:"record,omitempty"`
}

// ResolveResponse carries resolution results in request order.
type ResolveResponse struct {
	AsOf       string             `json:"as_of"`
	Securities []ResolvedSecurity `json:"securities"`
}

// DataRequest asks for one field as a wide table.
type DataRequest struct {
	Source  string   `json:"source" validate:"required,oneof=ticks fundamentals metrics"`
	Field   string   `json:"field" validate:"required"`
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
	Start   string   `json:"start" validate:"required,datetime=2006-01-02"`
	End     string   `json:"end" validate:"required,datetime=2006-01-02"`
}

// EvalRequest evaluates an expression over a fresh session scope.
type EvalRequest struct {
	Expression string   `json:"expression" validate:"required"`
	Symbols    []string `json:"symbols" validate:"required,min=1,dive,required"`
	Start      string   `json:"start" validate:"required,datetime=2006-01-02"`
	End        string   `json:"end" validate:"required,datetime=2006-01-02"`
	ChunkSize  int      `json:"chunk_size,omitempty" validate:"omitempty,min=1"`
}

// TableResponse is the JSON form of a wide table. Missing cells are null.
type TableResponse struct {
	Dates   []string     `json:"dates"`
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

// UniverseResponse lists a named universe's symbols.
type UniverseResponse struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}
