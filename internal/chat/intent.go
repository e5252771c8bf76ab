// Package chat answers free-text questions about an existing context
// snapshot. Classification is a fixed ordered keyword table; answers are
// generated when possible and templated otherwise, never failing.
package chat

import (
	"strings"

	"geocontext/internal/fusion"
)

// Intent is the resolved meaning of a question.
type Intent struct {
	Name     string
	Category fusion.Category
	// Selectors drive the optional live re-query of the places index.
	Selectors []string
	// Requery marks narrow shop types the snapshot's default tag set
	// does not cover well.
	Requery bool
}

// Matcher resolves a free-text question to an intent.
type Matcher interface {
	Match(question string) Intent
}

type rule struct {
	keywords []string
	intent   Intent
}

// Keywords is the default matcher: a fixed ordered rule table scanned
// top to bottom, first match wins. Specific rules sit above generic
// ones ("tapas" and "panader" must hit before the restaurant rule),
// so the order below is load-bearing.
type Keywords struct {
	rules []rule
}

// IntentInfrastructure is the default when nothing matches.
const IntentInfrastructure = "infrastructure"

func NewKeywords() *Keywords {
	return &Keywords{rules: []rule{
		{[]string{"tapas", "tapeo"}, Intent{Name: "tapas", Category: fusion.CategoryRestaurant}},
		{[]string{"panader", "bakery", "bread", "pan "}, Intent{Name: "bakery", Category: fusion.CategoryBakery, Requery: true, Selectors: []string{"shop=bakery"}}},
		{[]string{"farmacia", "pharmac", "medicin"}, Intent{Name: "pharmacy", Category: fusion.CategoryPharmacy}},
		{[]string{"hospital", "urgencias", "clinic", "doctor"}, Intent{Name: "hospital", Category: fusion.CategoryHospital}},
		{[]string{"supermercado", "supermarket", "grocer", "comprar comida"}, Intent{Name: "supermarket", Category: fusion.CategorySupermarket}},
		{[]string{"cafe", "café", "coffee", "desayun"}, Intent{Name: "cafe", Category: fusion.CategoryCafe}},
		{[]string{"copas", "club", "discoteca", "nightlife", "fiesta"}, Intent{Name: "nightlife", Category: fusion.CategoryClub}},
		{[]string{"bar", "cerveza", "beer", "drink"}, Intent{Name: "bar", Category: fusion.CategoryBar}},
		{[]string{"hotel", "hostal", "alojamiento", "stay", "sleep"}, Intent{Name: "hotel", Category: fusion.CategoryHotel}},
		{[]string{"museo", "museum"}, Intent{Name: "museum", Category: fusion.CategoryMuseum}},
		{[]string{"parque", "park", "verde", "green space"}, Intent{Name: "park", Category: fusion.CategoryPark}},
		{[]string{"banco", "bank", "atm", "cajero"}, Intent{Name: "bank", Category: fusion.CategoryBank}},
		{[]string{"colegio", "escuela", "school"}, Intent{Name: "school", Category: fusion.CategorySchool}},
		{[]string{"metro", "bus", "tren", "train", "transporte", "transport", "station"}, Intent{Name: "transport", Category: fusion.CategoryTransport}},
		{[]string{"mirador", "viewpoint", "vistas"}, Intent{Name: "viewpoint", Category: fusion.CategoryViewpoint}},
		{[]string{"restaurante", "restaurant", "comer", "cena", "eat", "dinner", "lunch", "food"}, Intent{Name: "restaurant", Category: fusion.CategoryRestaurant}},
		{[]string{"turismo", "ver", "visitar", "sight", "attraction"}, Intent{Name: "attraction", Category: fusion.CategoryAttraction}},
	}}
}

// Match scans the rule table in order; the first rule with any keyword
// contained in the lowercased question wins.
func (k *Keywords) Match(question string) Intent {
	q := strings.ToLower(question)
	for _, r := range k.rules {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.intent
			}
		}
	}
	return Intent{Name: IntentInfrastructure, Category: fusion.CategoryTransport}
}
