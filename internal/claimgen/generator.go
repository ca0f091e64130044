// Package claimgen generates labelled synthetic claims for exercising the
// analysis pipeline end to end, and scores predictions against the labels.
package claimgen

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// District is a Hong Kong district with its centroid.
type District struct {
	Name string
	Lat  float64
	Lng  float64
}

// Treatment is a billable treatment with its usual amount range in HKD.
type Treatment struct {
	Code string
	Name string
	Min  float64
	Max  float64
}

var districts = []District{
	{"Central and Western", 22.2855, 114.1577},
	{"Wan Chai", 22.2783, 114.1747},
	{"Eastern", 22.2841, 114.2245},
	{"Southern", 22.2461, 114.1625},
	{"Yau Tsim Mong", 22.3193, 114.1694},
	{"Sham Shui Po", 22.3304, 114.1625},
	{"Kowloon City", 22.3301, 114.1916},
	{"Wong Tai Sin", 22.3364, 114.1953},
	{"Kwun Tong", 22.3120, 114.2264},
	{"Tsuen Wan", 22.3688, 114.1138},
	{"Tuen Mun", 22.3910, 113.9773},
	{"Yuen Long", 22.4448, 114.0236},
	{"North", 22.4946, 114.1381},
	{"Tai Po", 22.4509, 114.1638},
	{"Sha Tin", 22.3793, 114.1951},
	{"Sai Kung", 22.3814, 114.2715},
	{"Islands", 22.2644, 113.9462},
}

var hospitals = []string{
	"Queen Mary Hospital",
	"Princess Margaret Hospital",
	"Tuen Mun Hospital",
	"Prince of Wales Hospital",
	"Queen Elizabeth Hospital",
	"United Christian Hospital",
	"Pamela Youde Nethersole Eastern Hospital",
	"Kwong Wah Hospital",
	"Caritas Medical Centre",
	"North District Hospital",
}

var treatments = []Treatment{
	{"T001", "General Consultation", 500, 2000},
	{"T045", "X-Ray Imaging", 800, 3000},
	{"T089", "Blood Test Panel", 600, 1500},
	{"T123", "Minor Surgery", 5000, 20000},
	{"T156", "Physiotherapy Session", 400, 1200},
	{"T234", "MRI Scan", 5000, 15000},
	{"T345", "Emergency Treatment", 3000, 25000},
	{"T456", "Specialist Consultation", 1000, 3500},
	{"T567", "Dental Procedure", 800, 5000},
	{"T678", "Hospitalization (per day)", 2000, 8000},
}

var (
	firstNames = []string{"Wing", "Ying", "Ming", "Fai", "Kit", "Siu", "Chi", "Wai", "Hei", "Lok"}
	lastNames  = []string{"Chan", "Wong", "Leung", "Lam", "Ng", "Cheung", "Tsang", "Ho", "Yu", "Chow"}
	fraudTypes = []string{
		"Upcoding",
		"Billing for services not rendered",
		"Staged accident",
		"Duplicate claim",
		"Exaggerated claim amount",
	}
	fraudProviders = []int{666, 999, 1000}
)

// LabeledClaim is a generated claim with its ground truth.
type LabeledClaim struct {
	domain.Claim
	IsFraudulent bool   `json:"is_fraudulent"`
	FraudType    string `json:"fraud_type,omitempty"`
}

// Options control generation. The same options always produce the same
// claims.
type Options struct {
	Count     int
	FraudRate float64
	Seed      uint64

	// Reference anchors policy dates; zero means today at midnight UTC.
	Reference time.Time
}

// DefaultOptions returns 500 claims at a 15% fraud rate with seed 42.
func DefaultOptions() Options {
	return Options{Count: 500, FraudRate: 0.15, Seed: 42}
}

// Generator produces synthetic claims.
type Generator struct {
	rng *rand.Rand
	src rand.Source
	ref time.Time
}

// NewGenerator creates a generator seeded from opts.
func NewGenerator(opts Options) *Generator {
	ref := opts.Reference
	if ref.IsZero() {
		ref = time.Now().UTC().Truncate(24 * time.Hour)
	}
	src := rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	return &Generator{rng: rand.New(src), src: src, ref: ref}
}

// Generate returns opts.Count claims, the first Count*FraudRate of which
// are fraudulent before the final shuffle.
func Generate(opts Options) ([]LabeledClaim, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.FraudRate < 0 || opts.FraudRate > 1 {
		return nil, fmt.Errorf("fraud rate must be in [0,1], got %v", opts.FraudRate)
	}

	g := NewGenerator(opts)
	fraudulent := int(float64(opts.Count) * opts.FraudRate)

	claims := make([]LabeledClaim, 0, opts.Count)
	for i := range opts.Count {
		claims = append(claims, g.Claim(i+1, i < fraudulent))
	}
	g.rng.Shuffle(len(claims), func(i, j int) { claims[i], claims[j] = claims[j], claims[i] })
	return claims, nil
}

// Claim generates one claim. Fraudulent claims are filed soon after policy
// inception, carry inflated round amounts and come from high-risk providers.
func (g *Generator) Claim(index int, fraudulent bool) LabeledClaim {
	inception := g.ref.AddDate(0, 0, -g.between(180, 1800))

	var claimDate time.Time
	if fraudulent {
		claimDate = inception.AddDate(0, 0, g.between(1, 60))
	} else {
		claimDate = inception.AddDate(0, 0, g.between(90, 1000))
	}

	district := districts[g.rng.IntN(len(districts))]
	treatment := treatments[g.rng.IntN(len(treatments))]

	var amount decimal.Decimal
	if fraudulent {
		base := g.uniform(treatment.Max*0.7, treatment.Max*1.5)
		amount = decimal.NewFromFloat(math.Round(base/1000) * 1000)
	} else {
		amount = decimal.NewFromFloat(g.uniform(treatment.Min, treatment.Max)).Round(2)
	}

	claimant := firstNames[g.rng.IntN(len(firstNames))] + " " + lastNames[g.rng.IntN(len(lastNames))]
	hospital := hospitals[g.rng.IntN(len(hospitals))]

	providerID := fmt.Sprintf("PRV%04d", g.between(1, 500))
	if fraudulent {
		providerID = fmt.Sprintf("PRV%d", fraudProviders[g.rng.IntN(len(fraudProviders))])
	}

	lat, lng := district.Lat, district.Lng
	c := LabeledClaim{
		Claim: domain.Claim{
			ID:                  fmt.Sprintf("CLM%08d", index),
			PolicyNumber:        fmt.Sprintf("POL%d", g.between(100000, 999999)),
			ClaimantID:          fmt.Sprintf("HK%d", g.between(1000000, 9999999)),
			ClaimantName:        claimant,
			ProviderID:          providerID,
			ProviderName:        hospital,
			ClaimAmount:         amount,
			Currency:            "HKD",
			ClaimDate:           &claimDate,
			PolicyInceptionDate: &inception,
			TreatmentCode:       treatment.Code,
			DiagnosisCode:       fmt.Sprintf("D%03d", g.between(1, 999)),
			Location: &domain.Location{
				District:  district.Name,
				Latitude:  &lat,
				Longitude: &lng,
			},
		},
		IsFraudulent: fraudulent,
	}
	if fraudulent {
		c.FraudType = fraudTypes[g.rng.IntN(len(fraudTypes))]
	}
	return c
}

// between returns an int in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: g.src}.Rand()
}
