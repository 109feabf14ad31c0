// Package feature holds the transform contract shared by training and
// serving: the same attribute order, the same log transforms, and the same
// frozen label encoders must produce bit-identical vectors on both sides.
package feature

import "math"

// Column indices of the model-input vector. The per-row sample weight is not
// a column: training passes it separately to the fit step, and serving fixes
// it to 1.
const (
	ColYear = iota
	ColModel
	ColMileage
	ColColor
	ColTransmission
	NumColumns
)

// MonotoneSigns constrains the regressor per column: -1 means the predicted
// log-price must be non-increasing in that column. Only mileage is
// constrained.
var MonotoneSigns = [NumColumns]int{0, 0, -1, 0, 0}

// Input is one vehicle listing, prices excluded.
type Input struct {
	Make         string
	Model        string
	Year         int
	Mileage      float64
	Color        string
	Transmission string
}

// Encoders groups the three fitted label encoders of one bundle. All three
// must come from the same training run or the column codes are meaningless.
type Encoders struct {
	Model        *LabelEncoder
	Color        *LabelEncoder
	Transmission *LabelEncoder
}

// Vector maps a listing to the model-input vector:
//
//	[year, code(model), log1p(mileage), code(color), code(transmission)]
//
// An unseen category value fails with UnknownCategoryError; it is never
// silently mapped.
func Vector(in Input, enc Encoders) ([]float64, error) {
	modelCode, err := enc.Model.Transform(in.Model)
	if err != nil {
		return nil, err
	}
	colorCode, err := enc.Color.Transform(in.Color)
	if err != nil {
		return nil, err
	}
	transCode, err := enc.Transmission.Transform(in.Transmission)
	if err != nil {
		return nil, err
	}

	x := make([]float64, NumColumns)
	x[ColYear] = float64(in.Year)
	x[ColModel] = float64(modelCode)
	x[ColMileage] = math.Log1p(in.Mileage)
	x[ColColor] = float64(colorCode)
	x[ColTransmission] = float64(transCode)
	return x, nil
}
