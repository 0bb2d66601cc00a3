package flow

import (
	"fmt"

	"consignado-bot/internal/cpf"
)

// Replies holds the scripted texts sent back to users.
type Replies struct {
	Welcome    string
	Help       string
	InvalidCPF string
	Reminder   string
	Processing string
	Fallback   string
	// Confirmed renders the confirmation for a freshly validated CPF.
	Confirmed func(formattedCPF string) string
}

// DefaultReplies returns the Portuguese texts used in production.
func DefaultReplies() Replies {
	return Replies{
		Welcome: "👋 Olá! Sou o assistente de consignado.\n\n" +
			"Para começar, por favor, envie seu CPF (apenas números ou no formato 000.000.000-00).",
		Help: "📖 *Como usar o assistente:*\n\n" +
			"1️⃣ Envie seu *CPF* para iniciar a consulta\n" +
			"• Digite *oi* para iniciar uma nova consulta\n" +
			"• Digite *ajuda* para ver esta mensagem",
		InvalidCPF: "❌ CPF inválido. Por favor, verifique os 11 dígitos e envie novamente.",
		Reminder: "Ainda preciso do seu CPF. Envie os 11 dígitos, por exemplo 000.000.000-00.\n\n" +
			"Digite *ajuda* se precisar de instruções.",
		Processing: "⏳ Sua consulta de consignado está em processamento. Em breve retornaremos.\n\n" +
			"Digite *oi* para iniciar uma nova consulta.",
		Fallback: "Desculpe, não entendi. Digite *ajuda* para ver as opções.",
		Confirmed: func(formattedCPF string) string {
			return fmt.Sprintf("✅ CPF %s recebido!\n\n"+
				"Vamos consultar as oportunidades de consignado disponíveis para você. "+
				"Assim que a consulta terminar, enviaremos o resultado por aqui.", formattedCPF)
		},
	}
}

func (r Replies) confirmed(digits string) string {
	if r.Confirmed == nil {
		return DefaultReplies().Confirmed(cpf.Format(digits))
	}
	return r.Confirmed(cpf.Format(digits))
}
