package manifest

const moneyFragment = `
fragment Money on Money {
  amount
  currency
}`

const taxedMoneyFragment = `
fragment TaxedMoney on TaxedMoney {
  gross { ...Money }
  net { ...Money }
}`

const addressFragment = `
fragment Address on Address {
  firstName
  lastName
  companyName
  streetAddress1
  streetAddress2
  city
  countryArea
  postalCode
  country { code country }
  phone
}`

const orderFragment = moneyFragment + taxedMoneyFragment + addressFragment + `
fragment OrderDetails on Order {
  id
  number
  userEmail
  created
  status
  shippingMethodName
  user { id email firstName lastName }
  channel { id slug name currencyCode }
  total { ...TaxedMoney }
  subtotal { ...TaxedMoney }
  shippingPrice { ...TaxedMoney }
  lines {
    id
    productName
    variantName
    productSku
    quantity
    unitPrice { ...TaxedMoney }
    totalPrice { ...TaxedMoney }
    taxClass { id name metadata { key value } }
  }
  billingAddress { ...Address }
  shippingAddress { ...Address }
  metadata { key value }
  privateMetadata { key value }
}`

func orderSubscription(name, event string) string {
	return orderFragment + `
subscription ` + name + ` {
  event {
    ... on ` + event + ` {
      order { ...OrderDetails }
    }
  }
}`
}

const invoiceSentSubscription = orderFragment + `
subscription InvoiceSent {
  event {
    ... on InvoiceSent {
      invoice { id number url }
      order { ...OrderDetails }
    }
  }
}`

const giftCardSentSubscription = `
subscription GiftCardSent {
  event {
    ... on GiftCardSent {
      channel
      sentToEmail
      giftCard {
        id
        code
        created
        expiryDate
        initialBalance { amount currency }
        currentBalance { amount currency }
      }
    }
  }
}`

const customerCreatedSubscription = `
subscription CustomerCreated {
  event {
    ... on CustomerCreated {
      user { id email firstName lastName metadata { key value } }
    }
  }
}`

const fulfillmentCreatedSubscription = orderFragment + `
subscription FulfillmentCreated {
  event {
    ... on FulfillmentCreated {
      fulfillment { id }
      order { ...OrderDetails }
    }
  }
}`

const taxBaseFragment = moneyFragment + addressFragment + `
fragment TaxBase on TaxableObject {
  pricesEnteredWithTaxes
  currency
  channel { id slug }
  shippingPrice { ...Money }
  address { ...Address }
  discounts { amount { ...Money } type }
  lines {
    sourceLine {
      __typename
      ... on CheckoutLine { id }
      ... on OrderLine {
        id
        productSku
        productName
        variantName
        taxClass { id name metadata { key value } }
      }
    }
    quantity
    productSku
    productName
    chargeTaxes
    unitPrice { ...Money }
    totalPrice { ...Money }
  }
  sourceObject {
    __typename
    ... on Checkout {
      id
      email
      user { id email }
      billingAddress { ...Address }
      metadata { key value }
      avataxEntityCode: metafield(key: "avataxEntityCode")
    }
    ... on Order {
      id
      email: userEmail
      user { id email }
      billingAddress { ...Address }
      metadata { key value }
      avataxEntityCode: metafield(key: "avataxEntityCode")
    }
  }
}`

func calculateTaxesSubscription(name, event string) string {
	return taxBaseFragment + `
subscription ` + name + ` {
  event {
    ... on ` + event + ` {
      taxBase { ...TaxBase }
    }
  }
}`
}

const productFragment = moneyFragment + `
fragment Attributes on SelectedAttribute {
  attribute { id name slug }
  values { name slug }
}
fragment Category on Category {
  id
  name
  slug
  metadata { key value }
  parent { id name slug parent { id name slug } }
}
fragment VariantFields on ProductVariant {
  id
  name
  sku
  quantityAvailable
  attributes { ...Attributes }
  metadata { key value }
  channelListings {
    channel { id slug currencyCode }
    price { ...Money }
  }
}
fragment ProductFields on Product {
  id
  name
  slug
  seoDescription
  description
  rating
  thumbnail { url alt }
  category { ...Category }
  collections { id name slug }
  productType { id name }
  attributes { ...Attributes }
  metadata { key value }
}`

func productSubscription(name, event string) string {
	return productFragment + `
subscription ` + name + ` {
  event {
    ... on ` + event + ` {
      product {
        ...ProductFields
        variants {
          ...VariantFields
          product { ...ProductFields }
        }
      }
    }
  }
}`
}

func variantSubscription(name, event string) string {
	return productFragment + `
subscription ` + name + ` {
  event {
    ... on ` + event + ` {
      productVariant {
        ...VariantFields
        product { ...ProductFields }
      }
    }
  }
}`
}

const transactionActionFragment = `
fragment TransactionAction on TransactionAction {
  amount
  currency
  actionType
}`

const sourceObjectFragment = `
fragment SourceObject on OrderOrCheckout {
  __typename
  ... on Checkout { id userEmail: email channel { id slug } }
  ... on Order { id userEmail channel { id slug } }
}`

func transactionSessionSubscription(name, event string) string {
	return transactionActionFragment + sourceObjectFragment + `
subscription ` + name + ` {
  event {
    ... on ` + event + ` {
      action { ...TransactionAction }
      transaction { id pspReference }
      data
      idempotencyKey
      sourceObject { ...SourceObject }
    }
  }
}`
}

const transactionChargeRequestedSubscription = transactionActionFragment + `
subscription TransactionChargeRequested {
  event {
    ... on TransactionChargeRequested {
      action { ...TransactionAction }
      transaction {
        id
        pspReference
        checkout { id channel { id slug } }
        order { id channel { id slug } }
      }
    }
  }
}`
