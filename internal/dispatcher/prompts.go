package dispatcher

import "fmt"

const chatPreamble = "Vous êtes un assistant médical spécialisé en pharmacologie clinique. " +
	"L'utilisateur recherche des informations sur les médicaments, leur posologie, " +
	"les interactions, les effets indésirables et les bonnes pratiques d'utilisation. " +
	"Fournissez des réponses précises et référencées lorsque possible. " +
	"Mentionnez systématiquement que vos conseils ne remplacent pas l'avis d'un " +
	"professionnel de santé qualifié."

const imagePreamble = "Vous êtes un assistant médical spécialisé en analyse d'images médicales. " +
	"Donnez des indications générales sur les éléments à rechercher dans une image correspondant à la description fournie." +
	"Expliquez comment analyser l'image médicale décrite. " +
	"Votre réponse doit être utile et instructive."

// Domain names a prompt family; it doubles as the metrics route label.
type Domain string

const (
	DomainChat     Domain = "chat"
	DomainDocument Domain = "document"
	DomainImage    Domain = "image"
)

// PromptContext is an immutable preamble plus the caller's payload.
type PromptContext struct {
	domain   Domain
	preamble string
	payload  string
}

func ChatPrompt(message string) PromptContext {
	return PromptContext{domain: DomainChat, preamble: chatPreamble, payload: message}
}

func SummaryPrompt(text string) PromptContext {
	return PromptContext{domain: DomainDocument, payload: text}
}

func ImageDescriptionPrompt(description string) PromptContext {
	return PromptContext{domain: DomainImage, preamble: imagePreamble, payload: description}
}

func (p PromptContext) Domain() Domain  { return p.domain }
func (p PromptContext) Payload() string { return p.payload }

// String renders the prompt written to the text model.
func (p PromptContext) String() string {
	switch p.domain {
	case DomainChat:
		return fmt.Sprintf("%s\n\nUtilisateur : %s\nAssistant : ", p.preamble, p.payload)
	case DomainDocument:
		return fmt.Sprintf("Voici un extrait d'un document médical. Veuillez le résumer de façon concise :\n\n%s\n\nRésumé :", p.payload)
	case DomainImage:
		return fmt.Sprintf("%s\n\nDescription de l'image : %s\n\nAnalyse suggérée :", p.preamble, p.payload)
	default:
		return p.payload
	}
}
