package metamodel

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type OrderStatus string

func (OrderStatus) EnumValues() []string {
	return []string{"new", "paid", "shipped"}
}

type Versioned interface {
	GetVersion() int
}

type BaseEntity struct {
	_       MappedSuperclass
	ID      uuid.UUID `persist:"id"`
	Version int       `persist:"column,nullable:false"`
}

func (b *BaseEntity) GetVersion() int { return b.Version }

type Address struct {
	_    Embeddable `meta:"name:test_Address"`
	City string     `persist:"column,length:60"`
}

type Customer struct {
	BaseEntity
	_       Entity   `meta:"name:test_Customer"`
	Name    string   `persist:"column,nullable:false,length:100" validate:"size:1..100"`
	Orders  []*Order `persist:"one_to_many,mapped_by:customer"`
	Notes   string   `meta:""`
	Address Address  `persist:"embedded"`
	Ignored string
}

type Order struct {
	BaseEntity
	_        Entity      `meta:"name:test_Order"`
	Number   string      `persist:"column,length:20" validate:"notnull@ui,message:'number required'"`
	Customer *Customer   `persist:"many_to_one,optional:false"`
	Lines    []OrderLine `persist:"one_to_many,mapped_by:order" meta:"composition"`
	status   string      `persist:"column"`
	Amount   float64     `persist:"column" meta:"number_format:'#,##0.00'"`
	Created  time.Time   `persist:"column,temporal:date"`
	Code     string      `persist:"column" validate:"notnull@other"`
	Kind     OrderStatus `persist:"column" validate:"notnull"`
}

func (o *Order) Status() OrderStatus        { return OrderStatus(o.status) }
func (o *Order) SetStatus(status OrderStatus) { o.status = string(status) }
func (o *Order) Total() float64             { return o.Amount }

type OrderLine struct {
	_        Entity `meta:"name:test_OrderLine"`
	ID       int64  `persist:"id"`
	Order    *Order `persist:"many_to_one"`
	Quantity int    `persist:"column" validate:"min:1,max:99"`
}

type Author struct {
	_     Entity  `meta:"name:test_Author"`
	ID    int64   `persist:"id"`
	Books []*Book `persist:"one_to_many,mapped_by:author,optional:false" validate:"notnull"`
}

type Book struct {
	_      Entity  `meta:"name:test_Book"`
	ID     int64   `persist:"id"`
	Author *Author `persist:"many_to_one"`
}

type Ship struct {
	_     Entity    `meta:"name:test_Ship"`
	ID    int64     `persist:"id"`
	Crew  []*Sailor `persist:"one_to_many,mapped_by:ship"`
	Cargo []*Sailor `persist:"one_to_many,mapped_by:ship"`
}

type Sailor struct {
	_    Entity `meta:"name:test_Sailor"`
	ID   int64  `persist:"id"`
	Ship *Ship  `persist:"many_to_one"`
}

type Stranger struct {
	Name string
}

type Lost struct {
	_     Entity    `meta:"name:test_Lost"`
	ID    int64     `persist:"id"`
	Owner *Stranger `persist:"many_to_one"`
}

type Misnamed struct {
	_     Entity  `meta:"name:test_Misnamed"`
	ID    int64   `persist:"id"`
	Books []*Book `persist:"one_to_many,mapped_by:writer"`
}

type Invoice struct {
	_  Entity `meta:"name:test_Invoice"`
	ID int64  `persist:"id"`
}

func (i *Invoice) Total(rate float64) float64 { return rate }

type Archived struct {
	_  Entity `meta:"name:test_Archived,store:archive"`
	ID int64  `persist:"id"`
}

type Summary struct {
	_     ModelObject `meta:"name:test_Summary"`
	Label string      `meta:"mandatory"`
	Count int         `meta:"readonly"`
}

type Duplicate struct {
	_       Entity `meta:"name:test_Duplicate"`
	ID      int64  `persist:"id"`
	Value   string `persist:"column"`
	Values  []int  `meta:""`
	VALUE   string `meta:""`
	Present bool
}

func (d *Duplicate) GetValue() string { return d.Value }

type Plain struct {
	Name string
}

// newSalesCatalog registers the order domain used by most tests
func newSalesCatalog(t *testing.T) *TypeCatalog {
	t.Helper()

	catalog := NewTypeCatalog()
	catalog.MustRegister(BaseEntity{}, WithName("BaseEntity"))
	catalog.MustRegister(Address{}, WithName("Address"))
	catalog.MustRegister(Customer{}, WithName("Customer"))
	catalog.MustRegister(Order{}, WithName("Order"), WithAccessor("Total", `meta:""`))
	catalog.MustRegister(OrderLine{}, WithName("OrderLine"))
	catalog.MustRegister(Author{}, WithName("Author"))
	catalog.MustRegister(Book{}, WithName("Book"))
	catalog.MustRegister(Ship{}, WithName("Ship"))
	catalog.MustRegister(Sailor{}, WithName("Sailor"))
	catalog.MustRegister(Lost{}, WithName("Lost"))
	catalog.MustRegister(Misnamed{}, WithName("Misnamed"))
	catalog.MustRegister(Invoice{}, WithName("Invoice"), WithAccessor("Total", `meta:""`))
	catalog.MustRegister(Archived{}, WithName("Archived"))
	catalog.MustRegister(Summary{}, WithName("Summary"))
	catalog.MustRegister(Duplicate{}, WithName("Duplicate"), WithAccessor("GetValue", `meta:""`))
	catalog.MustRegister(Plain{}, WithName("Plain"))
	return catalog
}

var salesClasses = []string{"BaseEntity", "Address", "Customer", "Order", "OrderLine"}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

var versionedType = reflect.TypeOf((*Versioned)(nil)).Elem()
