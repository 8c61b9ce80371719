package listing

import "strconv"

// Field identifies one attribute of the specification record.
type Field string

const (
	FieldBrand         Field = "brand"
	FieldModel         Field = "model"
	FieldYear          Field = "year"
	FieldFrameMaterial Field = "frame_material"
	FieldWheelSize     Field = "wheel_size"
	FieldFrameSize     Field = "frame_size"
	FieldDrivetrain    Field = "drivetrain"
	FieldGroupset      Field = "groupset"
	FieldBrakes        Field = "brakes"
	FieldBrakesType    Field = "brakes_type"
	FieldSuspension    Field = "suspension"
	FieldFrontTravel   Field = "front_travel"
	FieldRearTravel    Field = "rear_travel"
	FieldColor         Field = "color"
	FieldCassette      Field = "cassette"
	FieldTires         Field = "tires"
	FieldFork          Field = "fork"
	FieldShock         Field = "shock"
)

// FactFields lists every field of ExtractedFacts in display order.
var FactFields = []Field{
	FieldBrand, FieldModel, FieldYear, FieldFrameMaterial, FieldWheelSize,
	FieldFrameSize, FieldDrivetrain, FieldGroupset, FieldBrakes, FieldBrakesType,
	FieldSuspension, FieldFrontTravel, FieldRearTravel, FieldColor, FieldCassette,
	FieldTires, FieldFork, FieldShock,
}

// Get returns the field value as a string, or "" when absent.
func (f *ExtractedFacts) Get(field Field) string {
	switch field {
	case FieldBrand:
		return f.Brand
	case FieldModel:
		return f.Model
	case FieldYear:
		return itoa(f.Year)
	case FieldFrameMaterial:
		return f.FrameMaterial
	case FieldWheelSize:
		return f.WheelSize
	case FieldFrameSize:
		return f.FrameSize
	case FieldDrivetrain:
		return f.Drivetrain
	case FieldGroupset:
		return f.Groupset
	case FieldBrakes:
		return f.Brakes
	case FieldBrakesType:
		return f.BrakesType
	case FieldSuspension:
		return f.Suspension
	case FieldFrontTravel:
		return itoa(f.FrontTravel)
	case FieldRearTravel:
		return itoa(f.RearTravel)
	case FieldColor:
		return f.Color
	case FieldCassette:
		return f.Cassette
	case FieldTires:
		return f.Tires
	case FieldFork:
		return f.Fork
	case FieldShock:
		return f.Shock
	}
	return ""
}

// Set assigns a string value to a field. Numeric fields ignore values that
// do not parse as integers.
func (f *ExtractedFacts) Set(field Field, value string) {
	switch field {
	case FieldBrand:
		f.Brand = value
	case FieldModel:
		f.Model = value
	case FieldYear:
		f.Year = atoi(value)
	case FieldFrameMaterial:
		f.FrameMaterial = value
	case FieldWheelSize:
		f.WheelSize = value
	case FieldFrameSize:
		f.FrameSize = value
	case FieldDrivetrain:
		f.Drivetrain = value
	case FieldGroupset:
		f.Groupset = value
	case FieldBrakes:
		f.Brakes = value
	case FieldBrakesType:
		f.BrakesType = value
	case FieldSuspension:
		f.Suspension = value
	case FieldFrontTravel:
		f.FrontTravel = atoi(value)
	case FieldRearTravel:
		f.RearTravel = atoi(value)
	case FieldColor:
		f.Color = value
	case FieldCassette:
		f.Cassette = value
	case FieldTires:
		f.Tires = value
	case FieldFork:
		f.Fork = value
	case FieldShock:
		f.Shock = value
	}
}

// Filled returns the number of populated fact fields.
func (f *ExtractedFacts) Filled() int {
	n := 0
	for _, field := range FactFields {
		if f.Get(field) != "" {
			n++
		}
	}
	return n
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
