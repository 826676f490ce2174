package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/lessslie/Pelu-PetShop/internal/email"
	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
)

const (
	subjectConfirmation = "¡Confirmación de tu turno en Pet Shop!"
	subjectModified     = "Tu turno fue modificado"
	subjectPaid         = "¡Pago confirmado para tu turno en Pet Shop!"
)

type Service interface {
	// SendAppointmentConfirmation mails the booking details and, when known,
	// the checkout link.
	SendAppointmentConfirmation(ctx context.Context, customer *model.User, appointment *model.Appointment, checkoutURL string) error
	SendAppointmentModified(ctx context.Context, to string, appointment *model.Appointment) error
	SendPaymentConfirmed(ctx context.Context, customer *model.User, appointment *model.Appointment, paymentID string) error
}

type service struct {
	mailer    email.Service
	templates *template.Template
	log       *logger.Logger
}

func NewService(mailer email.Service, log *logger.Logger) Service {
	return &service{
		mailer:    mailer,
		templates: template.Must(template.New("mail").Funcs(funcs).Parse(mailTemplates)),
		log:       log.Component("notification"),
	}
}

type mailData struct {
	Name        string
	PetName     string
	Date        string
	Time        string
	Size        string
	Service     string
	Price       float64
	Currency    string
	CheckoutURL string
	PaymentID   string
}

func newMailData(name string, a *model.Appointment) mailData {
	return mailData{
		Name:     name,
		PetName:  a.PetName,
		Date:     longDate(a.Date),
		Time:     a.StartTime.String(),
		Size:     a.PetSize.Label(),
		Service:  a.ServiceType.Label(),
		Price:    a.Price,
		Currency: model.Currency,
	}
}

func (s *service) SendAppointmentConfirmation(ctx context.Context, customer *model.User, appointment *model.Appointment, checkoutURL string) error {
	data := newMailData(customer.FullName(), appointment)
	data.CheckoutURL = checkoutURL
	return s.send(ctx, customer.Email, subjectConfirmation, "confirmation", data)
}

func (s *service) SendAppointmentModified(ctx context.Context, to string, appointment *model.Appointment) error {
	return s.send(ctx, to, subjectModified, "modified", newMailData(appointment.CustomerName, appointment))
}

func (s *service) SendPaymentConfirmed(ctx context.Context, customer *model.User, appointment *model.Appointment, paymentID string) error {
	data := newMailData(customer.FullName(), appointment)
	data.PaymentID = paymentID
	return s.send(ctx, customer.Email, subjectPaid, "paid", data)
}

func (s *service) send(ctx context.Context, to, subject, tmpl string, data mailData) error {
	if to == "" {
		return fmt.Errorf("no recipient for %q", subject)
	}

	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("failed to render %s mail: %w", tmpl, err)
	}

	if err := s.mailer.Send(ctx, &email.Message{To: to, Subject: subject, HTML: body.String()}); err != nil {
		return err
	}

	s.log.Debug("Mail sent", "template", tmpl, "to", to)
	return nil
}

var weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

var months = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// longDate renders dates the way the shop writes them, e.g. "miércoles, 21 de octubre de 2026".
func longDate(d time.Time) string {
	return fmt.Sprintf("%s, %d de %s de %d", weekdays[d.Weekday()], d.Day(), months[d.Month()-1], d.Year())
}

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

const mailTemplates = `
{{define "details"}}
<div style="background-color: #f9f9f9; padding: 15px; border-radius: 5px; margin: 20px 0;">
  <p><strong>Fecha:</strong> {{.Date}}</p>
  <p><strong>Hora:</strong> {{.Time}}</p>
  <p><strong>Mascota:</strong> {{.PetName}}</p>
  <p><strong>Tamaño:</strong> {{.Size}}</p>
  <p><strong>Servicio:</strong> {{.Service}}</p>
</div>
{{end}}

{{define "confirmation"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <p>Hola {{.Name}},</p>
  <p>¡Tu turno para {{.PetName}} ha sido reservado con éxito!</p>
  {{template "details" .}}
  <p><strong>Precio estimado:</strong> ${{money .Price}} {{.Currency}}</p>
  {{if .CheckoutURL}}
  <p>Para confirmar tu reserva, debes realizar el pago. Puedes hacerlo a través del siguiente enlace:</p>
  <p style="text-align: center;"><a href="{{.CheckoutURL}}">Realizar Pago</a></p>
  {{end}}
  <p>Por favor, llega 10 minutos antes de tu cita. Si necesitas cancelar o reprogramar, háznoslo saber con al menos 24 horas de anticipación.</p>
  <p>¡Esperamos verte pronto!</p>
</div>
{{end}}

{{define "modified"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <p>¡Hola{{if .Name}} {{.Name}}{{end}}! Te informamos que tu turno fue modificado:</p>
  {{template "details" .}}
  <p><strong>Precio:</strong> ${{money .Price}} {{.Currency}}</p>
  <p>Si tienes dudas, contáctanos.</p>
</div>
{{end}}

{{define "paid"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <p>Hola {{.Name}},</p>
  <p>Hemos recibido tu pago y tu turno para {{.PetName}} está completamente confirmado. ¡Gracias por tu confianza!</p>
  {{template "details" .}}
  <p><strong>Precio pagado:</strong> ${{money .Price}} {{.Currency}}</p>
  <p><strong>ID de pago:</strong> {{.PaymentID}}</p>
  <p>Por favor, llega 10 minutos antes de tu cita.</p>
  <p>¡Esperamos verte pronto!</p>
</div>
{{end}}
`
