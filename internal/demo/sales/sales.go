// Package sales is a small order-management domain used by the metagraph binary and
// by the command tests.
package sales

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

// Status is the order lifecycle
type Status string

const (
	StatusNew       Status = "new"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

func (Status) EnumValues() []string {
	return []string{string(StatusNew), string(StatusPaid), string(StatusShipped), string(StatusCancelled)}
}

// Versioned is implemented by optimistically locked entities
type Versioned interface {
	GetVersion() int
}

// Audited is implemented by entities that track their creation time
type Audited interface {
	GetCreatedAt() time.Time
}

type Base struct {
	_         metamodel.MappedSuperclass
	ID        uuid.UUID `persist:"id"`
	Version   int       `persist:"column,nullable:false"`
	CreatedAt time.Time `persist:"column,temporal:timestamp"`
}

func (b *Base) GetVersion() int          { return b.Version }
func (b *Base) GetCreatedAt() time.Time { return b.CreatedAt }

type Address struct {
	_       metamodel.Embeddable `meta:"name:sales_Address"`
	Street  string               `persist:"column,length:120"`
	City    string               `persist:"column,length:60" validate:"notnull"`
	Country string               `persist:"column,length:2" validate:"size:2..2"`
}

type Customer struct {
	Base
	_       metamodel.Entity `meta:"name:sales_Customer"`
	Name    string           `persist:"column,nullable:false,length:100" validate:"size:1..100"`
	Email   string           `persist:"column,length:254" ext:"widget:email"`
	Address Address          `persist:"embedded"`
	Orders  []*Order         `persist:"one_to_many,mapped_by:customer"`
	Notes   string           `meta:""`
}

type Product struct {
	Base
	_     metamodel.Entity `meta:"name:sales_Product"`
	SKU   string           `persist:"column,nullable:false,length:32"`
	Title string           `persist:"column,length:200" validate:"notnull@ui,message:'title is required'"`
	Price float64          `persist:"column" meta:"number_format:'#,##0.00'" validate:"decimal_min:0.00"`
	Photo []byte           `persist:"column,lob"`
}

type Order struct {
	Base
	_         metamodel.Entity `meta:"name:sales_Order"`
	Number    string           `persist:"column,nullable:false,length:20"`
	Customer  *Customer        `persist:"many_to_one,optional:false"`
	Lines     []*OrderLine     `persist:"one_to_many,mapped_by:order" meta:"composition"`
	OrderedOn time.Time        `persist:"column,temporal:date" validate:"past"`
	Discount  float64          `persist:"column" validate:"min:0,max:100"`
	status    Status           `persist:"column"`
}

func (o *Order) Status() Status          { return o.status }
func (o *Order) SetStatus(status Status) { o.status = status }

// Total sums the line amounts
func (o *Order) Total() float64 {
	var total float64
	for _, l := range o.Lines {
		total += l.Amount()
	}
	return total * (100 - o.Discount) / 100
}

type OrderLine struct {
	Base
	_        metamodel.Entity `meta:"name:sales_OrderLine"`
	Order    *Order           `persist:"many_to_one,optional:false"`
	Product  *Product         `persist:"many_to_one,optional:false"`
	Quantity int              `persist:"column" validate:"min:1,max:999"`
	Price    float64          `persist:"column"`
}

func (l *OrderLine) Amount() float64 { return float64(l.Quantity) * l.Price }

// DailyTotal is a reporting view kept in a separate store
type DailyTotal struct {
	_      metamodel.Entity `meta:"name:sales_DailyTotal,store:reporting"`
	Day    time.Time        `persist:"id,temporal:date"`
	Orders int              `persist:"column"`
	Amount float64          `persist:"column"`
}

// CartSummary is a non-persistent model object shown in the UI
type CartSummary struct {
	_        metamodel.ModelObject `meta:"name:sales_CartSummary"`
	Customer *Customer             `meta:"mandatory"`
	Items    int                   `meta:"readonly"`
	Amount   float64               `meta:"number_format:'0.00'"`
}

// DefaultClasses are the classes loaded when no class list is configured. The
// reporting view needs the reporting store and is left out.
var DefaultClasses = []string{
	"sales.Base",
	"sales.Address",
	"sales.Customer",
	"sales.Product",
	"sales.Order",
	"sales.OrderLine",
	"sales.CartSummary",
}

// SystemInterfaces maps the names accepted in metadata.system_interfaces to types
var SystemInterfaces = map[string]reflect.Type{
	"sales.Versioned": reflect.TypeOf((*Versioned)(nil)).Elem(),
	"sales.Audited":   reflect.TypeOf((*Audited)(nil)).Elem(),
}

// Catalog registers every class of the domain
func Catalog() *metamodel.TypeCatalog {
	catalog := metamodel.NewTypeCatalog()
	catalog.MustRegister(Base{})
	catalog.MustRegister(Address{})
	catalog.MustRegister(Customer{})
	catalog.MustRegister(Product{})
	catalog.MustRegister(Order{},
		metamodel.WithAccessor("Total", `meta:"number_format:'#,##0.00'"`))
	catalog.MustRegister(OrderLine{}, metamodel.WithAccessor("Amount", `meta:""`))
	catalog.MustRegister(DailyTotal{})
	catalog.MustRegister(CartSummary{})
	return catalog
}
